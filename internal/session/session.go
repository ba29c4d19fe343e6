package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/worldflightpedia/internal/parser"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// DefaultSpawnReqBase is the first request identifier of the multi-spawn range
const DefaultSpawnReqBase types.RequestID = 3000

// unobserved is the last-observed value before any sample arrives, so the
// first sample of 0 or 1 always counts as a change.
const unobserved = -1.0

// POIUpdatePolicy decides what an inbound panel message does to the POI list
type POIUpdatePolicy int

const (
	// KeepOnMismatch replaces the list only for POI messages with a data array
	KeepOnMismatch POIUpdatePolicy = iota
	// ClearOnReceipt replaces the list with the parse result of every message
	ClearOnReceipt
)

// ParsePOIUpdatePolicy maps a config value to a policy
func ParsePOIUpdatePolicy(s string) (POIUpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepOnMismatch, nil
	case "clear":
		return ClearOnReceipt, nil
	default:
		return KeepOnMismatch, fmt.Errorf("invalid POI update policy %q", s)
	}
}

func (p POIUpdatePolicy) String() string {
	if p == ClearOnReceipt {
		return "clear"
	}
	return "keep"
}

// Tour is the navigation state. Active == false implies ActiveIndex == -1.
type Tour struct {
	Active      bool
	ActiveIndex int
}

// State holds everything the module knows about the current host session.
// It is owned by the module event loop and is not safe for concurrent use.
type State struct {
	SessionID    string
	StartedAt    time.Time
	SpawnReqBase types.RequestID

	pois         []types.Coordinate
	tour         Tour
	lastObserved map[types.Variable]float64
	handles      []types.ObjectID
	lastHandle   types.ObjectID
	policy       POIUpdatePolicy
}

// New creates the state for a fresh session
func New(policy POIUpdatePolicy, spawnReqBase types.RequestID) *State {
	if spawnReqBase == 0 {
		spawnReqBase = DefaultSpawnReqBase
	}
	s := &State{
		SessionID:    uuid.New().String(),
		StartedAt:    time.Now().UTC(),
		SpawnReqBase: spawnReqBase,
		policy:       policy,
	}
	s.Reset()
	return s
}

// Reset returns the state to its session-start values, keeping id and config
func (s *State) Reset() {
	s.pois = nil
	s.tour = Tour{Active: false, ActiveIndex: -1}
	s.lastObserved = map[types.Variable]float64{
		types.VarSpawnToggle: unobserved,
		types.VarStartFlight: unobserved,
		types.VarNextPoi:     unobserved,
		types.VarSpawnCube:   unobserved,
	}
	s.handles = nil
	s.lastHandle = types.ObjectIDUser
}

// Policy returns the POI update policy
func (s *State) Policy() POIUpdatePolicy {
	return s.policy
}

// POIs returns a copy of the POI list
func (s *State) POIs() []types.Coordinate {
	out := make([]types.Coordinate, len(s.pois))
	copy(out, s.pois)
	return out
}

// POICount returns the number of POIs
func (s *State) POICount() int {
	return len(s.pois)
}

// POI returns the coordinate at index i
func (s *State) POI(i int) (types.Coordinate, bool) {
	if i < 0 || i >= len(s.pois) {
		return types.Coordinate{}, false
	}
	return s.pois[i], true
}

// ReplacePOIs replaces the POI list wholesale
func (s *State) ReplacePOIs(coords []types.Coordinate) {
	s.pois = make([]types.Coordinate, len(coords))
	copy(s.pois, coords)
}

// ApplyPanelMessage updates the POI list from a panel message according to
// the policy. It reports whether the list was replaced.
func (s *State) ApplyPanelMessage(msg string) bool {
	if s.policy == KeepOnMismatch && !parser.IsPOIMessage(msg) {
		return false
	}
	s.ReplacePOIs(parser.ParsePOICoordinates(msg))
	return true
}

// Tour returns the navigation state
func (s *State) Tour() Tour {
	return s.tour
}

// StartTour activates the tour at index 0
func (s *State) StartTour() {
	s.tour = Tour{Active: true, ActiveIndex: 0}
}

// StopTour deactivates the tour
func (s *State) StopTour() {
	s.tour = Tour{Active: false, ActiveIndex: -1}
}

// AdvanceTour increments the active index and returns it. It is a no-op
// returning -1 when the tour is not active.
func (s *State) AdvanceTour() int {
	if !s.tour.Active {
		return -1
	}
	s.tour.ActiveIndex++
	return s.tour.ActiveIndex
}

// LastObserved returns the previous sample of v
func (s *State) LastObserved(v types.Variable) float64 {
	if last, ok := s.lastObserved[v]; ok {
		return last
	}
	return unobserved
}

// Observe records value as the last sample of v and reports whether it differs
// from the previous one.
func (s *State) Observe(v types.Variable, value float64) bool {
	changed := s.LastObserved(v) != value
	s.lastObserved[v] = value
	return changed
}

// Handles returns a copy of the live handle multiset
func (s *State) Handles() []types.ObjectID {
	out := make([]types.ObjectID, len(s.handles))
	copy(out, s.handles)
	return out
}

// HandleCount returns the number of live handles
func (s *State) HandleCount() int {
	return len(s.handles)
}

// AddHandle records a created object
func (s *State) AddHandle(id types.ObjectID) {
	s.handles = append(s.handles, id)
	s.lastHandle = id
}

// LastHandle returns the most recently recorded handle, or ObjectIDUser
func (s *State) LastHandle() types.ObjectID {
	return s.lastHandle
}

// ReplaceHandles sets the handle multiset, used after a remove-all
func (s *State) ReplaceHandles(ids []types.ObjectID) {
	s.handles = ids
	if len(ids) == 0 {
		s.lastHandle = types.ObjectIDUser
	}
}

// Status returns the snapshot mirrored to the panel
func (s *State) Status(now time.Time) types.TourStatus {
	return types.TourStatus{
		SessionID:   s.SessionID,
		Active:      s.tour.Active,
		ActiveIndex: s.tour.ActiveIndex,
		POICount:    len(s.pois),
		HandleCount: len(s.handles),
		UpdatedAt:   now,
	}
}
