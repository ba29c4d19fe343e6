package module

import (
	"context"
	"log/slog"
	"time"

	"github.com/saviobatista/worldflightpedia/internal/dispatch"
	"github.com/saviobatista/worldflightpedia/internal/flight"
	"github.com/saviobatista/worldflightpedia/internal/objects"
	"github.com/saviobatista/worldflightpedia/internal/schedule"
	"github.com/saviobatista/worldflightpedia/internal/session"
	"github.com/saviobatista/worldflightpedia/internal/stats"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// Channel sizes
const (
	DefaultQueueSize  = 256
	DefaultStatusSize = 16
)

// statusWriteTimeout bounds a single mirror write
const statusWriteTimeout = 2 * time.Second

// Host is the host link surface the module drives
type Host interface {
	objects.Host
	flight.Host
	MarkClosed()
}

// Panel is the outbound side of the panel channel
type Panel interface {
	Ack(msg string) error
}

// StatusStore mirrors the tour status for the panel
type StatusStore interface {
	StoreTourStatus(ctx context.Context, status types.TourStatus) error
	DeleteTourStatus(ctx context.Context, sessionID string) error
}

// Config holds module settings
type Config struct {
	POIUpdatePolicy    session.POIUpdatePolicy
	SpawnReqBase       types.RequestID
	MarkerTitle        string
	CubeTitle          string
	IndexedBatch       bool
	ConfirmationPolicy objects.ConfirmationPolicy

	// Status is optional; nil disables the mirror
	Status     StatusStore
	QueueSize  int
	StatusSize int

	Logger *slog.Logger
	Stats  *stats.Stats
	Now    func() time.Time
}

// Module owns the session state and every component built on it. Only the
// goroutine running Run touches the state; producers hand work over through
// PushNotification and PushPanelMessage.
type Module struct {
	state      *session.State
	queue      *schedule.Queue
	objects    *objects.Manager
	nav        *flight.Controller
	dispatcher *dispatch.Dispatcher

	host   Host
	panel  Panel
	status StatusStore

	notifications chan types.Notification
	panelMessages chan types.PanelMessage
	statusCh      chan types.TourStatus
	done          chan struct{}

	lastStatus types.TourStatus
	now        func() time.Time
	log        *slog.Logger
	stats      *stats.Stats
}

// New builds a module and its components around a fresh session state
func New(host Host, panel Panel, cfg Config) *Module {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.StatusSize <= 0 {
		cfg.StatusSize = DefaultStatusSize
	}

	state := session.New(cfg.POIUpdatePolicy, cfg.SpawnReqBase)
	queue := schedule.New()

	mgr := objects.New(host, state, objects.Config{
		MarkerTitle:  cfg.MarkerTitle,
		CubeTitle:    cfg.CubeTitle,
		Policy:       cfg.ConfirmationPolicy,
		IndexedBatch: cfg.IndexedBatch,
		Logger:       cfg.Logger,
		Stats:        cfg.Stats,
		Now:          cfg.Now,
	})
	nav := flight.NewController(host, mgr, state, queue, flight.Options{
		Now:    cfg.Now,
		Logger: cfg.Logger,
		Stats:  cfg.Stats,
	})

	m := &Module{
		state:         state,
		queue:         queue,
		objects:       mgr,
		nav:           nav,
		dispatcher:    dispatch.New(state, mgr, nav, cfg.Logger, cfg.Stats),
		host:          host,
		panel:         panel,
		status:        cfg.Status,
		notifications: make(chan types.Notification, cfg.QueueSize),
		panelMessages: make(chan types.PanelMessage, cfg.QueueSize),
		statusCh:      make(chan types.TourStatus, cfg.StatusSize),
		done:          make(chan struct{}),
		now:           cfg.Now,
		log:           cfg.Logger.With("component", "module"),
		stats:         cfg.Stats,
	}
	m.lastStatus = state.Status(time.Time{})
	return m
}

// State returns the session state. Callers other than Run must not mutate it.
func (m *Module) State() *session.State {
	return m.state
}

// Stats returns the module statistics
func (m *Module) Stats() *stats.Stats {
	return m.stats
}

// PushNotification queues a host notification for the event loop. It blocks
// while the queue is full and reports false once the loop has stopped.
func (m *Module) PushNotification(n types.Notification) bool {
	select {
	case m.notifications <- n:
		return true
	case <-m.done:
		return false
	}
}

// PushPanelMessage queues a panel message for the event loop
func (m *Module) PushPanelMessage(msg types.PanelMessage) bool {
	select {
	case m.panelMessages <- msg:
		return true
	case <-m.done:
		return false
	}
}

// HandleNotification runs one dispatch turn. It reports whether the host
// ended the session.
func (m *Module) HandleNotification(n types.Notification) bool {
	_, quit := n.(types.Quit)
	if quit {
		m.host.MarkClosed()
		m.objects.Reset()
	}

	m.dispatcher.Dispatch(n)
	m.publishStatus()
	return quit
}

// HandlePanelMessage applies an inbound panel message to the POI list and
// echoes it back. The echo is sent whether or not the message parsed.
func (m *Module) HandlePanelMessage(msg types.PanelMessage) {
	m.stats.IncrementPanelMessages()

	if m.state.ApplyPanelMessage(msg.Text) {
		m.stats.AddParsedPOIs(m.state.POICount())
		m.log.Info("POI list replaced", "poi_count", m.state.POICount())
	} else {
		m.log.Info("panel message kept POI list", "poi_count", m.state.POICount())
	}

	if m.panel != nil {
		if err := m.panel.Ack(msg.Text); err != nil {
			m.log.Warn("failed to ack panel message", "err", err)
		}
	}
	m.publishStatus()
}

// Tick runs the scheduled effects that are due
func (m *Module) Tick() int {
	ran := m.nav.Tick()
	if ran > 0 {
		m.publishStatus()
	}
	return ran
}

// Run is the event loop. It returns when ctx is done or the host quits.
func (m *Module) Run(ctx context.Context) error {
	defer close(m.done)

	writerDone := make(chan struct{})
	writerCtx, stopWriter := context.WithCancel(context.Background())
	go m.statusWriter(writerCtx, writerDone)
	defer func() {
		stopWriter()
		<-writerDone
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	m.log.Info("event loop started", "session_id", m.state.SessionID)
	for {
		var wake <-chan time.Time
		if at, ok := m.queue.Next(); ok {
			d := at.Sub(m.now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			wake = timer.C
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			m.log.Info("event loop stopped", "reason", ctx.Err())
			return nil
		case n := <-m.notifications:
			if m.HandleNotification(n) {
				m.log.Info("host session ended")
				return nil
			}
		case msg := <-m.panelMessages:
			m.HandlePanelMessage(msg)
		case <-wake:
			m.Tick()
		}
	}
}

// publishStatus hands a changed status to the mirror writer, dropping it when
// the writer is behind
func (m *Module) publishStatus() {
	if m.status == nil {
		return
	}
	status := m.state.Status(time.Time{})
	if status == m.lastStatus {
		return
	}
	m.lastStatus = status
	status.UpdatedAt = m.now().UTC()

	select {
	case m.statusCh <- status:
	default:
		m.log.Warn("status mirror behind, snapshot dropped", "session_id", status.SessionID)
	}
}

// statusWriter drains statusCh into the store until ctx is cancelled, then
// flushes what is queued and removes the session's entry
func (m *Module) statusWriter(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if m.status == nil {
		<-ctx.Done()
		return
	}

	write := func(status types.TourStatus) {
		wctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
		defer cancel()
		if err := m.status.StoreTourStatus(wctx, status); err != nil {
			m.log.Warn("failed to mirror tour status", "err", err)
		}
	}

	for {
		select {
		case status := <-m.statusCh:
			write(status)
		case <-ctx.Done():
			for {
				select {
				case status := <-m.statusCh:
					write(status)
				default:
					dctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
					if err := m.status.DeleteTourStatus(dctx, m.state.SessionID); err != nil {
						m.log.Warn("failed to delete tour status", "err", err)
					}
					cancel()
					return
				}
			}
		}
	}
}
