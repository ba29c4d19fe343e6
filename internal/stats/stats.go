package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// NotificationKinds lists the host notification kinds counted separately.
// Index order is stable; it is the layout of the persisted kind array.
var NotificationKinds = [...]string{
	"open",
	"quit",
	"exception",
	"event",
	"event_filename",
	"assigned_object_id",
	"simobject_data",
	"unknown",
}

// Store persists statistics snapshots
type Store interface {
	StoreSessionStats(sessionID string, stats map[string]interface{}) error
}

// Stats tracks dispatch and host request statistics for one session
type Stats struct {
	// Inbound
	TotalNotifications uint64
	PanelMessages      uint64
	ParsedPOIs         uint64

	// Per notification kind, indexed like NotificationKinds
	NotificationCounts [len(NotificationKinds)]uint64

	// Host requests
	SpawnRequests  uint64
	RemoveRequests uint64
	DataRequests   uint64
	HostFailures   uint64

	// Acknowledgements
	AcksTracked uint64
	AcksIgnored uint64

	// Navigation
	ToursStarted   uint64
	ToursCompleted uint64
	POIAdvances    uint64
	TimedResets    uint64

	// Timing
	StartTime        time.Time
	LastDispatchTime time.Time
	DispatchTime     time.Duration

	sessionID string
	store     Store
	log       *slog.Logger

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	now := time.Now()
	return &Stats{
		StartTime:        now,
		LastDispatchTime: now,
		log:              slog.Default(),
	}
}

// SetStore sets the persistence backend and the session the rows belong to
func (s *Stats) SetStore(store Store, sessionID string) {
	s.mu.Lock()
	s.store = store
	s.sessionID = sessionID
	s.mu.Unlock()
}

// SetLogger replaces the logger used by periodic persistence
func (s *Stats) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	store, sessionID := s.store, s.sessionID
	s.mu.RUnlock()
	if store == nil {
		return fmt.Errorf("statistics store not set")
	}

	return store.StoreSessionStats(sessionID, s.GetStats())
}

// IncrementNotification counts one host notification of the given kind
func (s *Stats) IncrementNotification(kind string) {
	atomic.AddUint64(&s.TotalNotifications, 1)
	for i, k := range NotificationKinds {
		if k == kind {
			atomic.AddUint64(&s.NotificationCounts[i], 1)
			return
		}
	}
	atomic.AddUint64(&s.NotificationCounts[len(NotificationKinds)-1], 1)
}

// IncrementPanelMessages counts one inbound panel message
func (s *Stats) IncrementPanelMessages() {
	atomic.AddUint64(&s.PanelMessages, 1)
}

// AddParsedPOIs adds the number of coordinates extracted from a panel message
func (s *Stats) AddParsedPOIs(n int) {
	if n > 0 {
		atomic.AddUint64(&s.ParsedPOIs, uint64(n))
	}
}

// IncrementSpawnRequests counts one submitted create request
func (s *Stats) IncrementSpawnRequests() {
	atomic.AddUint64(&s.SpawnRequests, 1)
}

// IncrementRemoveRequests counts one submitted remove request
func (s *Stats) IncrementRemoveRequests() {
	atomic.AddUint64(&s.RemoveRequests, 1)
}

// IncrementDataRequests counts one submitted one-shot data request
func (s *Stats) IncrementDataRequests() {
	atomic.AddUint64(&s.DataRequests, 1)
}

// IncrementHostFailures counts one failed host call or host exception
func (s *Stats) IncrementHostFailures() {
	atomic.AddUint64(&s.HostFailures, 1)
}

// IncrementAcksTracked counts an acknowledgement folded into the handle set
func (s *Stats) IncrementAcksTracked() {
	atomic.AddUint64(&s.AcksTracked, 1)
}

// IncrementAcksIgnored counts an informational or unknown acknowledgement
func (s *Stats) IncrementAcksIgnored() {
	atomic.AddUint64(&s.AcksIgnored, 1)
}

// IncrementToursStarted counts a tour start
func (s *Stats) IncrementToursStarted() {
	atomic.AddUint64(&s.ToursStarted, 1)
}

// IncrementToursCompleted counts a tour that ran past its last POI
func (s *Stats) IncrementToursCompleted() {
	atomic.AddUint64(&s.ToursCompleted, 1)
}

// IncrementPOIAdvances counts a successful advance to the next POI
func (s *Stats) IncrementPOIAdvances() {
	atomic.AddUint64(&s.POIAdvances, 1)
}

// IncrementTimedResets counts a fired audio cue reset
func (s *Stats) IncrementTimedResets() {
	atomic.AddUint64(&s.TimedResets, 1)
}

// AddDispatchTime records one dispatch turn
func (s *Stats) AddDispatchTime(duration time.Duration) {
	s.mu.Lock()
	s.DispatchTime += duration
	s.LastDispatchTime = time.Now()
	s.mu.Unlock()
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var kinds [len(NotificationKinds)]uint64
	for i := range kinds {
		kinds[i] = atomic.LoadUint64(&s.NotificationCounts[i])
	}

	return map[string]interface{}{
		"total_notifications": atomic.LoadUint64(&s.TotalNotifications),
		"panel_messages":      atomic.LoadUint64(&s.PanelMessages),
		"parsed_pois":         atomic.LoadUint64(&s.ParsedPOIs),
		"notification_kinds":  kinds,
		"spawn_requests":      atomic.LoadUint64(&s.SpawnRequests),
		"remove_requests":     atomic.LoadUint64(&s.RemoveRequests),
		"data_requests":       atomic.LoadUint64(&s.DataRequests),
		"host_failures":       atomic.LoadUint64(&s.HostFailures),
		"acks_tracked":        atomic.LoadUint64(&s.AcksTracked),
		"acks_ignored":        atomic.LoadUint64(&s.AcksIgnored),
		"tours_started":       atomic.LoadUint64(&s.ToursStarted),
		"tours_completed":     atomic.LoadUint64(&s.ToursCompleted),
		"poi_advances":        atomic.LoadUint64(&s.POIAdvances),
		"timed_resets":        atomic.LoadUint64(&s.TimedResets),
		"last_dispatch_time":  s.LastDispatchTime,
		"dispatch_time":       s.DispatchTime,
		"uptime":              time.Since(s.StartTime),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()
	return fmt.Sprintf(
		"Notifications: %d\n"+
			"Panel Messages: %d\n"+
			"Parsed POIs: %d\n"+
			"Spawn Requests: %d\n"+
			"Remove Requests: %d\n"+
			"Data Requests: %d\n"+
			"Host Failures: %d\n"+
			"Acks Tracked: %d\n"+
			"Acks Ignored: %d\n"+
			"Tours Started: %d\n"+
			"Tours Completed: %d\n"+
			"Last Dispatch Time: %s\n"+
			"Dispatch Time: %s\n"+
			"Uptime: %s",
		stats["total_notifications"],
		stats["panel_messages"],
		stats["parsed_pois"],
		stats["spawn_requests"],
		stats["remove_requests"],
		stats["data_requests"],
		stats["host_failures"],
		stats["acks_tracked"],
		stats["acks_ignored"],
		stats["tours_started"],
		stats["tours_completed"],
		stats["last_dispatch_time"],
		stats["dispatch_time"],
		stats["uptime"],
	)
}

// StartPersistence starts periodic persistence of statistics
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				s.logger().Warn("failed to persist final statistics", "err", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				s.logger().Warn("failed to persist statistics", "err", err)
			}
		}
	}
}

func (s *Stats) logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log
}
