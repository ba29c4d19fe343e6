package dispatch

import (
	"log/slog"
	"time"

	"github.com/saviobatista/worldflightpedia/internal/session"
	"github.com/saviobatista/worldflightpedia/internal/stats"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// CubeOffsetMeters is the lateral offset of the cube from the user aircraft
const CubeOffsetMeters = 1.0

// Objects is the object lifecycle surface used by the dispatcher
type Objects interface {
	SpawnAll() error
	RemoveAll() error
	SpawnSingleNearReference() error
	SpawnSingleAtOffset(lat, lon, altitude, headingDeg, offsetMeters float64) error
	HandleAssigned(ack types.AssignedObjectID) bool
}

// Navigator is the tour state machine surface used by the dispatcher
type Navigator interface {
	OnStartStopChanged(value float64)
	OnAdvanceRequested(value float64)
	Tick() int
}

// Dispatcher routes host notifications to the navigator and the object
// manager. It keeps no state of its own and never blocks.
type Dispatcher struct {
	state   *session.State
	objects Objects
	nav     Navigator
	log     *slog.Logger
	stats   *stats.Stats
}

// New creates a dispatcher
func New(state *session.State, objects Objects, nav Navigator, logger *slog.Logger, st *stats.Stats) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		st = stats.New()
	}
	return &Dispatcher{
		state:   state,
		objects: objects,
		nav:     nav,
		log:     logger.With("component", "dispatch"),
		stats:   st,
	}
}

// Dispatch handles one notification. Scheduled effects that are due run first.
func (d *Dispatcher) Dispatch(n types.Notification) {
	if n == nil {
		return
	}
	start := time.Now()
	defer func() { d.stats.AddDispatchTime(time.Since(start)) }()

	d.nav.Tick()
	d.stats.IncrementNotification(n.Kind())

	switch msg := n.(type) {
	case types.Open:
		d.log.Info("host session opened", "application", msg.ApplicationName)
	case types.Quit:
		d.log.Info("host session quit")
	case types.Exception:
		d.stats.IncrementHostFailures()
		d.log.Warn("host exception", "exception", msg.Exception, "send_id", msg.SendID, "index", msg.Index)
	case types.EventFilename:
		d.handleEventFilename(msg)
	case types.Event:
		d.handleEvent(msg)
	case types.AssignedObjectID:
		d.objects.HandleAssigned(msg)
	case types.SimObjectData:
		d.handleSample(msg)
	default:
		d.log.Debug("notification ignored", "kind", n.Kind())
	}
}

func (d *Dispatcher) handleEventFilename(evt types.EventFilename) {
	if evt.EventID == types.EventFlightLoaded {
		d.log.Info("flight loaded", "file", evt.FileName)
		return
	}
	d.log.Info("file event", "event_id", evt.EventID, "file", evt.FileName)
}

func (d *Dispatcher) handleEvent(evt types.Event) {
	switch evt.EventID {
	case types.EventSimStart:
		d.log.Info("sim start event received")
	case types.EventFlightPlanLoaded:
		d.log.Info("flight plan loaded event received")
	case types.EventTriggerM:
		d.log.Info("key M pressed, spawning all markers")
		_ = d.objects.SpawnAll()
	case types.EventTriggerN:
		d.log.Info("key N pressed, removing all markers")
		_ = d.objects.RemoveAll()
	default:
		d.log.Info("generic event", "event_id", evt.EventID)
	}
}

func (d *Dispatcher) handleSample(data types.SimObjectData) {
	if data.RequestID == types.RequestUserPosForCube {
		d.handleUserPosition(data)
		return
	}

	value, err := data.Float64()
	if err != nil {
		d.log.Warn("failed to decode sample", "request_id", data.RequestID, "err", err)
		return
	}

	switch data.RequestID {
	case types.RequestLVarSpawn:
		d.handleSpawnToggle(value)
	case types.RequestLVarStartFlight:
		d.nav.OnStartStopChanged(value)
	case types.RequestLVarNextPoi:
		d.nav.OnAdvanceRequested(value)
	case types.RequestLVarSpawnCube:
		d.handleCubeTrigger(value)
	default:
		d.log.Debug("sample ignored", "request_id", data.RequestID)
	}
}

func (d *Dispatcher) handleSpawnToggle(value float64) {
	if !d.state.Observe(types.VarSpawnToggle, value) {
		return
	}
	d.log.Info("spawn toggle changed", "var", types.VarSpawnToggle.String(), "value", value)

	switch value {
	case 1.0:
		_ = d.objects.SpawnAll()
	case 0.0:
		_ = d.objects.RemoveAll()
	}
}

func (d *Dispatcher) handleCubeTrigger(value float64) {
	if !d.state.Observe(types.VarSpawnCube, value) || value != 1.0 {
		return
	}
	d.log.Info("cube spawn triggered", "var", types.VarSpawnCube.String())
	_ = d.objects.SpawnSingleNearReference()
}

func (d *Dispatcher) handleUserPosition(data types.SimObjectData) {
	pos, err := data.UserPosition()
	if err != nil {
		d.log.Warn("failed to decode user position", "request_id", data.RequestID, "err", err)
		return
	}
	d.log.Info("user position received",
		"lat", pos.Latitude, "lon", pos.Longitude, "alt", pos.Altitude, "heading", pos.HeadingTrue)
	_ = d.objects.SpawnSingleAtOffset(pos.Latitude, pos.Longitude, pos.Altitude, pos.HeadingTrue, CubeOffsetMeters)
}
