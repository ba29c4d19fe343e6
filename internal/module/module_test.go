package module

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/worldflightpedia/internal/flight"
	"github.com/saviobatista/worldflightpedia/internal/hostlink"
	"github.com/saviobatista/worldflightpedia/internal/testutils"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

type createCall struct {
	title string
	pos   types.InitPosition
	req   types.RequestID
}

type fakeHost struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	creates   []createCall
	removes   []types.ObjectID
	codes     []string
}

func (h *fakeHost) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHost) CreateObject(title string, pos types.InitPosition, req types.RequestID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creates = append(h.creates, createCall{title, pos, req})
	return nil
}

func (h *fakeHost) RemoveObject(id types.ObjectID, req types.RequestID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removes = append(h.removes, id)
	return nil
}

func (h *fakeHost) RequestDataOnce(req types.RequestID, def types.DefinitionID) error {
	return nil
}

func (h *fakeHost) ExecuteCalculatorCode(code string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes = append(h.codes, code)
	return nil
}

func (h *fakeHost) MarkClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.closed = true
}

func (h *fakeHost) hasCode(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.codes {
		if c == code {
			return true
		}
	}
	return false
}

// silentBridge accepts the session open and never answers anything else
type silentBridge struct {
	mu        sync.Mutex
	published []string
	release   chan struct{}
}

func (b *silentBridge) Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	if subj == hostlink.SubjectRequestPrefix+"open" {
		out, _ := json.Marshal(hostlink.Reply{OK: true})
		return &nats.Msg{Subject: subj, Data: out}, nil
	}
	<-b.release
	return nil, nats.ErrTimeout
}

func (b *silentBridge) PublishRequest(subj, reply string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, strings.TrimPrefix(subj, hostlink.SubjectRequestPrefix))
	return nil
}

func (b *silentBridge) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return nil, nil
}

func (b *silentBridge) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.published {
		if p == op {
			n++
		}
	}
	return n
}

type fakePanel struct {
	mu   sync.Mutex
	acks []string
	err  error
}

func (p *fakePanel) Ack(msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, "ack: "+msg)
	return p.err
}

type fakeStatusStore struct {
	mu      sync.Mutex
	stored  []types.TourStatus
	deleted []string
}

func (s *fakeStatusStore) StoreTourStatus(ctx context.Context, status types.TourStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, status)
	return nil
}

func (s *fakeStatusStore) DeleteTourStatus(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, sessionID)
	return nil
}

func (s *fakeStatusStore) last() (types.TourStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stored) == 0 {
		return types.TourStatus{}, false
	}
	return s.stored[len(s.stored)-1], true
}

var tourPOIs = []types.Coordinate{
	{Latitude: 48.8584, Longitude: 2.2945},
	{Latitude: 48.8606, Longitude: 2.3376},
	{Latitude: 48.8530, Longitude: 2.3499},
}

func TestModule_TourScenario(t *testing.T) {
	host := &fakeHost{connected: true}
	panel := &fakePanel{}
	clock := testutils.NewFakeClock()
	m := New(host, panel, Config{Now: clock.Now})

	m.HandleNotification(types.Open{ApplicationName: "KittyHawk"})

	msg := testutils.MockPOIMessage(tourPOIs)
	m.HandlePanelMessage(types.PanelMessage{Text: msg})
	if m.State().POICount() != 3 {
		t.Fatalf("Expected 3 POIs, got %d", m.State().POICount())
	}
	if len(panel.acks) != 1 || panel.acks[0] != "ack: "+msg {
		t.Errorf("Unexpected acks %v", panel.acks)
	}

	m.HandleNotification(testutils.MockLVarSample(types.RequestLVarStartFlight, 1))
	if len(host.creates) != 1 || host.creates[0].req != types.RequestAddMarkers {
		t.Fatalf("Expected first POI spawn, got %+v", host.creates)
	}
	if host.creates[0].pos.Latitude != tourPOIs[0].Latitude || !host.creates[0].pos.OnGround {
		t.Errorf("Unexpected spawn position %+v", host.creates[0].pos)
	}

	m.HandleNotification(types.AssignedObjectID{RequestID: types.RequestAddMarkers, ObjectID: 77})
	if m.State().HandleCount() != 1 {
		t.Fatalf("Expected 1 handle, got %d", m.State().HandleCount())
	}

	m.HandleNotification(testutils.MockLVarSample(types.RequestLVarNextPoi, 1))
	if len(host.removes) != 1 || host.removes[0] != 77 {
		t.Errorf("Expected handle 77 removed, got %v", host.removes)
	}
	if len(host.creates) != 2 || host.creates[1].pos.Latitude != tourPOIs[1].Latitude {
		t.Errorf("Expected second POI spawn, got %+v", host.creates)
	}
	if !host.hasCode(flight.CodeAudioOn) || host.hasCode(flight.CodeAudioOff) {
		t.Errorf("Expected audio cue on only, got %v", host.codes)
	}

	clock.Advance(5 * time.Second)
	if ran := m.Tick(); ran != 1 {
		t.Errorf("Expected 1 scheduled effect, got %d", ran)
	}
	if !host.hasCode(flight.CodeAudioOff) {
		t.Error("Expected audio cue reset after delay")
	}

	tour := m.State().Tour()
	if !tour.Active || tour.ActiveIndex != 1 {
		t.Errorf("Expected touring at 1, got %+v", tour)
	}

	stats := m.Stats().GetStats()
	if stats["panel_messages"] != uint64(1) || stats["parsed_pois"] != uint64(3) {
		t.Errorf("Unexpected panel counters %v / %v", stats["panel_messages"], stats["parsed_pois"])
	}
	if stats["timed_resets"] != uint64(1) {
		t.Errorf("Expected 1 timed reset, got %v", stats["timed_resets"])
	}
}

func TestModule_UnresponsiveBridgeDoesNotBlockDispatch(t *testing.T) {
	bridge := &silentBridge{release: make(chan struct{})}
	defer close(bridge.release)

	host := hostlink.New(bridge, nil)
	if err := host.Open("FlightpediaConnect"); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	m := New(host, nil, Config{})
	m.State().ReplacePOIs(tourPOIs)
	for _, id := range []types.ObjectID{11, 12, 13} {
		m.State().AddHandle(id)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.HandleNotification(types.Event{EventID: types.EventTriggerN})
		m.HandleNotification(types.Event{EventID: types.EventTriggerM})
		m.HandleNotification(testutils.MockLVarSample(types.RequestLVarStartFlight, 1))
		m.HandleNotification(testutils.MockLVarSample(types.RequestLVarNextPoi, 1))
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Dispatch waited on the host bridge")
	}

	if n := bridge.count("remove_object"); n != 3 {
		t.Errorf("Expected 3 removals, got %d", n)
	}
	if n := bridge.count("create_object"); n != 5 {
		t.Errorf("Expected batch and tour spawns, got %d creates", n)
	}
	if n := bridge.count("calculator_code"); n != 2 {
		t.Errorf("Expected the audio cue, got %d calculator codes", n)
	}
}

func TestModule_PanelMessageAlwaysAcked(t *testing.T) {
	panel := &fakePanel{err: errors.New("bus down")}
	m := New(&fakeHost{connected: true}, panel, Config{})

	m.HandlePanelMessage(types.PanelMessage{Text: testutils.MockPOIMessage(tourPOIs)})
	m.HandlePanelMessage(types.PanelMessage{Text: "hello from the panel"})

	if len(panel.acks) != 2 || panel.acks[1] != "ack: hello from the panel" {
		t.Errorf("Expected every message acked, got %v", panel.acks)
	}
	if m.State().POICount() != 3 {
		t.Errorf("Non-POI message should keep the list, got %d POIs", m.State().POICount())
	}
}

func TestModule_Quit(t *testing.T) {
	host := &fakeHost{connected: true}
	m := New(host, nil, Config{})

	if m.HandleNotification(types.Open{}) {
		t.Error("Open should not end the session")
	}
	if !m.HandleNotification(types.Quit{}) {
		t.Error("Quit should end the session")
	}
	if !host.closed || host.Connected() {
		t.Error("Expected host marked closed")
	}
}

func TestModule_StatusPublishing(t *testing.T) {
	store := &fakeStatusStore{}
	m := New(&fakeHost{connected: true}, nil, Config{Status: store, StatusSize: 1})

	m.HandlePanelMessage(types.PanelMessage{Text: "not a POI message"})
	if len(m.statusCh) != 0 {
		t.Error("Unchanged status should not be published")
	}

	m.HandlePanelMessage(types.PanelMessage{Text: testutils.MockPOIMessage(tourPOIs)})
	if len(m.statusCh) != 1 {
		t.Fatalf("Expected 1 queued status, got %d", len(m.statusCh))
	}

	// Writer is not running, so the next change is dropped
	m.HandlePanelMessage(types.PanelMessage{Text: testutils.MockPOIMessage(tourPOIs[:1])})
	if len(m.statusCh) != 1 {
		t.Errorf("Expected full channel to drop, got %d queued", len(m.statusCh))
	}
	status := <-m.statusCh
	if status.POICount != 3 || status.UpdatedAt.IsZero() {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestModule_RunMirrorsStatus(t *testing.T) {
	store := &fakeStatusStore{}
	host := &fakeHost{connected: true}
	m := New(host, &fakePanel{}, Config{Status: store})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	m.PushPanelMessage(types.PanelMessage{Text: testutils.MockPOIMessage(tourPOIs)})
	m.PushNotification(testutils.MockLVarSample(types.RequestLVarStartFlight, 1))

	err := testutils.WaitForCondition(func() bool {
		s, ok := store.last()
		return ok && s.Active && s.POICount == 3
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("Status never mirrored: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop")
	}

	store.mu.Lock()
	deleted := append([]string(nil), store.deleted...)
	store.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != m.State().SessionID {
		t.Errorf("Expected session status deleted on stop, got %v", deleted)
	}
	if m.PushNotification(types.Open{}) {
		t.Error("Push after stop should report false")
	}
}

func TestModule_RunStopsOnQuit(t *testing.T) {
	host := &fakeHost{connected: true}
	m := New(host, nil, Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()

	m.PushNotification(types.Quit{})
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on quit")
	}
}

func TestModule_RunWakesForScheduledReset(t *testing.T) {
	host := &fakeHost{connected: true}
	var offset atomic.Int64
	now := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	m := New(host, &fakePanel{}, Config{Now: now})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.PushPanelMessage(types.PanelMessage{Text: testutils.MockPOIMessage(tourPOIs)})
	m.PushNotification(testutils.MockLVarSample(types.RequestLVarStartFlight, 1))
	m.PushNotification(testutils.MockLVarSample(types.RequestLVarNextPoi, 1))

	if err := testutils.WaitForCondition(func() bool { return host.hasCode(flight.CodeAudioOn) }, 2*time.Second); err != nil {
		t.Fatalf("Audio cue never triggered: %v", err)
	}

	// Bring the deadline close, then wake the loop with a panel message so
	// the timer is re-armed; no host notification follows.
	offset.Store(int64(flight.AudioResetDelay - 200*time.Millisecond))
	m.PushPanelMessage(types.PanelMessage{Text: "ping"})

	if err := testutils.WaitForCondition(func() bool { return host.hasCode(flight.CodeAudioOff) }, 2*time.Second); err != nil {
		t.Errorf("Audio cue was not reset by the loop timer: %v", err)
	}
}
