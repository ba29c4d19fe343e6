package objects

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/saviobatista/worldflightpedia/internal/hostlink"
	"github.com/saviobatista/worldflightpedia/internal/session"
	"github.com/saviobatista/worldflightpedia/internal/stats"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// EarthRadiusMeters is the radius used by the flat-earth offset projection
const EarthRadiusMeters = 6378137.0

// Default object titles
const (
	DefaultMarkerTitle = "laser_red"
	DefaultCubeTitle   = "wfp_cube"
)

var (
	// ErrNoPOIs is returned when a spawn needs POIs and none are loaded
	ErrNoPOIs = errors.New("no POIs loaded")
	// ErrNoHandles is returned by RemoveAll when nothing is spawned
	ErrNoHandles = errors.New("no spawned objects to remove")
)

// Host is the part of the host link the manager drives
type Host interface {
	Connected() bool
	CreateObject(title string, pos types.InitPosition, req types.RequestID) error
	RemoveObject(id types.ObjectID, req types.RequestID) error
	RequestDataOnce(req types.RequestID, def types.DefinitionID) error
}

// ConfirmationPolicy decides what RemoveAll leaves in the handle set
type ConfirmationPolicy int

const (
	// Optimistic clears the handle set once removals are requested
	Optimistic ConfirmationPolicy = iota
	// RetainFailed keeps handles whose remove call failed
	RetainFailed
)

// ParseConfirmationPolicy maps a config value to a policy
func ParseConfirmationPolicy(s string) (ConfirmationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optimistic":
		return Optimistic, nil
	case "retain-failed":
		return RetainFailed, nil
	default:
		return Optimistic, fmt.Errorf("invalid confirmation policy %q", s)
	}
}

func (p ConfirmationPolicy) String() string {
	if p == RetainFailed {
		return "retain-failed"
	}
	return "optimistic"
}

// Config holds Manager settings
type Config struct {
	MarkerTitle string
	CubeTitle   string
	Policy      ConfirmationPolicy
	// IndexedBatch makes SpawnAll use one request identifier per POI,
	// starting at the session's spawn base, instead of the shared marker id.
	IndexedBatch bool
	Logger       *slog.Logger
	Stats        *stats.Stats
	Now          func() time.Time
}

// Manager issues create and remove requests and keeps the handle set in the
// session state consistent with the acknowledgements it receives.
type Manager struct {
	host     Host
	state    *session.State
	registry *Registry
	cfg      Config
	log      *slog.Logger
	stats    *stats.Stats
}

// New creates a manager
func New(host Host, state *session.State, cfg Config) *Manager {
	if cfg.MarkerTitle == "" {
		cfg.MarkerTitle = DefaultMarkerTitle
	}
	if cfg.CubeTitle == "" {
		cfg.CubeTitle = DefaultCubeTitle
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.New()
	}
	return &Manager{
		host:     host,
		state:    state,
		registry: NewRegistry(),
		cfg:      cfg,
		log:      cfg.Logger.With("component", "objects"),
		stats:    cfg.Stats,
	}
}

// Pending returns the number of create requests awaiting acknowledgement
func (m *Manager) Pending() int {
	return m.registry.Len()
}

// Policy returns the confirmation policy in use
func (m *Manager) Policy() ConfirmationPolicy {
	return m.cfg.Policy
}

// SpawnAll creates one ground-clamped marker at every POI
func (m *Manager) SpawnAll() error {
	if !m.host.Connected() {
		m.log.Info("spawn all skipped: host session not established")
		return hostlink.ErrNotConnected
	}
	pois := m.state.POIs()
	if len(pois) == 0 {
		m.log.Info("spawn all skipped: no POIs loaded")
		return ErrNoPOIs
	}

	failed := 0
	for i, c := range pois {
		kind, req := KindBatchSpawn, types.RequestAddMarkers
		if m.cfg.IndexedBatch {
			kind, req = KindMultiSpawn, m.state.SpawnReqBase+types.RequestID(i)
		}
		if err := m.spawn(kind, req, i, m.cfg.MarkerTitle, types.GroundPosition(c)); err != nil {
			failed++
		}
	}
	m.log.Info("spawn all submitted", "count", len(pois), "failed", failed)
	return nil
}

// SpawnTourPOI creates the ground-clamped marker for the tour stop at index
func (m *Manager) SpawnTourPOI(index int, c types.Coordinate) error {
	if !m.host.Connected() {
		m.log.Info("tour spawn skipped: host session not established", "poi_index", index)
		return hostlink.ErrNotConnected
	}
	return m.spawn(KindTourSpawn, types.RequestAddMarkers, index, m.cfg.MarkerTitle, types.GroundPosition(c))
}

// RemoveAll requests removal of every tracked handle, then updates the handle
// set according to the confirmation policy.
func (m *Manager) RemoveAll() error {
	if !m.host.Connected() {
		m.log.Info("remove all skipped: host session not established")
		return hostlink.ErrNotConnected
	}
	handles := m.state.Handles()
	if len(handles) == 0 {
		m.log.Info("remove all skipped: no spawned objects")
		return ErrNoHandles
	}

	var failed []types.ObjectID
	for _, id := range handles {
		m.stats.IncrementRemoveRequests()
		if err := m.host.RemoveObject(id, types.RequestRemoveMarkers); err != nil {
			m.stats.IncrementHostFailures()
			m.log.Warn("remove request failed", "object_id", id, "err", err)
			failed = append(failed, id)
		}
	}

	switch m.cfg.Policy {
	case RetainFailed:
		m.state.ReplaceHandles(failed)
	default:
		m.state.ReplaceHandles(nil)
	}
	m.log.Info("remove all submitted", "count", len(handles), "failed", len(failed), "retained", m.state.HandleCount())
	return nil
}

// SpawnSingleNearReference requests a one-shot read of the user position.
// The spawn happens when the sample arrives.
func (m *Manager) SpawnSingleNearReference() error {
	if !m.host.Connected() {
		m.log.Info("reference spawn skipped: host session not established")
		return hostlink.ErrNotConnected
	}
	m.stats.IncrementDataRequests()
	if err := m.host.RequestDataOnce(types.RequestUserPosForCube, types.DefinitionUserPosition); err != nil {
		m.stats.IncrementHostFailures()
		m.log.Warn("user position request failed", "request_id", types.RequestUserPosForCube, "err", err)
		return err
	}
	m.log.Info("user position requested", "request_id", types.RequestUserPosForCube)
	return nil
}

// SpawnSingleAtOffset creates one airborne cube offsetMeters to the right of
// the given position and heading.
func (m *Manager) SpawnSingleAtOffset(lat, lon, altitude, headingDeg, offsetMeters float64) error {
	if !m.host.Connected() {
		m.log.Info("offset spawn skipped: host session not established")
		return hostlink.ErrNotConnected
	}
	pos := OffsetPosition(lat, lon, altitude, headingDeg, offsetMeters)
	return m.spawn(KindOffsetSpawn, types.RequestAddCube, -1, m.cfg.CubeTitle, pos)
}

// HandleAssigned folds an object assignment acknowledgement into the handle
// set. It reports whether the object is now tracked.
func (m *Manager) HandleAssigned(ack types.AssignedObjectID) bool {
	kind := KindUnknown
	poiIndex := -1
	if op, ok := m.registry.Resolve(ack.RequestID); ok {
		kind, poiIndex = op.Kind, op.POIIndex
	} else {
		kind = Classify(ack.RequestID, m.state.SpawnReqBase)
	}

	if !kind.Tracked() {
		m.stats.IncrementAcksIgnored()
		m.log.Info("object assigned, not tracked",
			"request_id", ack.RequestID, "object_id", ack.ObjectID, "kind", kind.String())
		return false
	}

	m.state.AddHandle(ack.ObjectID)
	m.stats.IncrementAcksTracked()
	m.log.Info("object assigned",
		"request_id", ack.RequestID, "object_id", ack.ObjectID, "kind", kind.String(),
		"poi_index", poiIndex, "handles", m.state.HandleCount())
	return true
}

// Reset forgets pending operations, used when the host session restarts
func (m *Manager) Reset() {
	m.registry.Clear()
}

func (m *Manager) spawn(kind Kind, req types.RequestID, poiIndex int, title string, pos types.InitPosition) error {
	op := m.registry.Issue(kind, req, poiIndex, m.cfg.Now())
	m.stats.IncrementSpawnRequests()
	if err := m.host.CreateObject(title, pos, req); err != nil {
		m.registry.Drop(op.Token)
		m.stats.IncrementHostFailures()
		m.log.Warn("create request failed",
			"title", title, "request_id", req, "kind", kind.String(), "poi_index", poiIndex, "err", err)
		return err
	}
	m.log.Debug("create request submitted",
		"title", title, "request_id", req, "kind", kind.String(), "poi_index", poiIndex,
		"lat", pos.Latitude, "lon", pos.Longitude, "on_ground", pos.OnGround)
	return nil
}

// OffsetPosition projects offsetMeters perpendicular to the right of
// headingDeg using a flat-earth approximation. The result is airborne at
// altitude with the given heading. Degenerate near the poles.
func OffsetPosition(lat, lon, altitude, headingDeg, offsetMeters float64) types.InitPosition {
	bearing := (headingDeg + 90.0) * math.Pi / 180.0
	dNorth := math.Sin(bearing) * offsetMeters
	dEast := math.Cos(bearing) * offsetMeters

	latRad := lat * math.Pi / 180.0
	dLat := dNorth / EarthRadiusMeters
	dLon := dEast / (EarthRadiusMeters * math.Cos(latRad))

	return types.InitPosition{
		Latitude:  lat + dLat*180.0/math.Pi,
		Longitude: lon + dLon*180.0/math.Pi,
		Altitude:  altitude,
		Heading:   headingDeg,
		OnGround:  false,
	}
}
