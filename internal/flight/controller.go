package flight

import (
	"log/slog"
	"time"

	"github.com/saviobatista/worldflightpedia/internal/schedule"
	"github.com/saviobatista/worldflightpedia/internal/session"
	"github.com/saviobatista/worldflightpedia/internal/stats"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// Audio cue calculator codes
const (
	CodeAudioVolume = "100 (>L:WFP_NEXT_POI_VOLUME)"
	CodeAudioOn     = "1 (>L:WFP_NEXT_POI_SOUND)"
	CodeAudioOff    = "0 (>L:WFP_NEXT_POI_SOUND)"
)

// AudioResetKey is the schedule key of the audio cue reset
const AudioResetKey = "next-poi-sound-reset"

// AudioResetDelay is the minimum time the audio cue stays on
const AudioResetDelay = 4 * time.Second

// Host executes calculator code on the host
type Host interface {
	ExecuteCalculatorCode(code string) error
}

// Objects is the object lifecycle the controller drives
type Objects interface {
	RemoveAll() error
	SpawnTourPOI(index int, c types.Coordinate) error
}

// Controller is the POI tour state machine. It is Idle while the tour is
// inactive and Touring otherwise.
type Controller struct {
	host    Host
	objects Objects
	state   *session.State
	queue   *schedule.Queue
	now     func() time.Time
	log     *slog.Logger
	stats   *stats.Stats
}

// Options holds optional Controller dependencies
type Options struct {
	Now    func() time.Time
	Logger *slog.Logger
	Stats  *stats.Stats
}

// NewController creates a controller. The queue is shared with the event
// loop, which drains it.
func NewController(host Host, objects Objects, state *session.State, queue *schedule.Queue, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	return &Controller{
		host:    host,
		objects: objects,
		state:   state,
		queue:   queue,
		now:     opts.Now,
		log:     opts.Logger.With("component", "flight"),
		stats:   opts.Stats,
	}
}

// OnStartStopChanged handles a sample of the start flight variable. 1 starts
// the tour at the first POI, 0 stops it. Unchanged samples are ignored.
func (c *Controller) OnStartStopChanged(value float64) {
	if !c.state.Observe(types.VarStartFlight, value) {
		return
	}
	c.log.Info("start flight changed", "var", types.VarStartFlight.String(), "value", value)

	switch value {
	case 1.0:
		_ = c.objects.RemoveAll()
		c.state.StartTour()
		c.stats.IncrementToursStarted()

		poi, ok := c.state.POI(0)
		if !ok {
			c.log.Info("tour started with no POIs to spawn")
			return
		}
		if err := c.objects.SpawnTourPOI(0, poi); err == nil {
			c.log.Info("tour started", "poi_index", 0, "lat", poi.Latitude, "lon", poi.Longitude)
		}
	case 0.0:
		_ = c.objects.RemoveAll()
		c.state.StopTour()
		c.log.Info("tour stopped")
	}
}

// OnAdvanceRequested handles a sample of the next POI variable. A change to 1
// while touring moves to the next POI, or ends the tour past the last one.
func (c *Controller) OnAdvanceRequested(value float64) {
	if !c.state.Observe(types.VarNextPoi, value) {
		return
	}
	c.log.Info("next POI changed", "var", types.VarNextPoi.String(), "value", value)

	if !c.state.Tour().Active || value != 1.0 {
		return
	}

	index := c.state.AdvanceTour()
	poi, ok := c.state.POI(index)
	if !ok {
		_ = c.objects.RemoveAll()
		c.state.StopTour()
		c.stats.IncrementToursCompleted()
		c.log.Info("end of POI list reached", "poi_count", c.state.POICount())
		return
	}

	_ = c.objects.RemoveAll()
	if err := c.objects.SpawnTourPOI(index, poi); err == nil {
		c.log.Info("advanced to POI", "poi_index", index, "lat", poi.Latitude, "lon", poi.Longitude)
	}
	c.stats.IncrementPOIAdvances()
	c.triggerAudioCue()
}

// Tick runs every scheduled effect that is due
func (c *Controller) Tick() int {
	return c.queue.RunDue(c.now())
}

// AudioResetPending returns the deadline of the pending audio reset
func (c *Controller) AudioResetPending() (time.Time, bool) {
	return c.queue.Pending(AudioResetKey)
}

func (c *Controller) triggerAudioCue() {
	c.execute(CodeAudioVolume)
	c.execute(CodeAudioOn)

	at := c.now().Add(AudioResetDelay)
	c.queue.Arm(AudioResetKey, at, func(time.Time) {
		c.execute(CodeAudioOff)
		c.stats.IncrementTimedResets()
		c.log.Info("audio cue reset")
	})
	c.log.Info("audio cue triggered", "reset_at", at)
}

func (c *Controller) execute(code string) {
	if err := c.host.ExecuteCalculatorCode(code); err != nil {
		c.stats.IncrementHostFailures()
		c.log.Warn("calculator code failed", "code", code, "err", err)
		return
	}
	c.log.Debug("calculator code executed", "code", code)
}
