package hostlink

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

type request struct {
	subject string
	reply   string
	payload map[string]any
	waited  bool
}

// fakeConn answers every request with ok unless the op is listed in fail.
// Published requests queue their reply until deliverReplies.
type fakeConn struct {
	requests []request
	fail     map[string]uint32
	err      error
	handlers map[string]nats.MsgHandler
	pending  []*nats.Msg
}

func newFakeConn() *fakeConn {
	return &fakeConn{fail: map[string]uint32{}, handlers: map[string]nats.MsgHandler{}}
}

func (f *fakeConn) record(subj, reply string, data []byte, waited bool) {
	var payload map[string]any
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}
	f.requests = append(f.requests, request{subj, reply, payload, waited})
}

func (f *fakeConn) replyFor(subj string) []byte {
	op := strings.TrimPrefix(subj, SubjectRequestPrefix)
	reply := Reply{OK: true}
	if status, ok := f.fail[op]; ok {
		reply = Reply{OK: false, Status: status, Error: "E_FAIL"}
	}
	out, _ := json.Marshal(reply)
	return out
}

func (f *fakeConn) Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	f.record(subj, "", data, true)
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Subject: subj, Data: f.replyFor(subj)}, nil
}

func (f *fakeConn) PublishRequest(subj, reply string, data []byte) error {
	f.record(subj, reply, data, false)
	if f.err != nil {
		return f.err
	}
	f.pending = append(f.pending, &nats.Msg{Subject: reply, Data: f.replyFor(subj)})
	return nil
}

func (f *fakeConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.handlers[subj] = cb
	return nil, nil
}

func (f *fakeConn) replyHandler() nats.MsgHandler {
	for subj, cb := range f.handlers {
		if strings.HasSuffix(subj, ".>") {
			return cb
		}
	}
	return nil
}

func (f *fakeConn) deliverReplies() {
	cb := f.replyHandler()
	for _, msg := range f.pending {
		if cb != nil {
			cb(msg)
		}
	}
	f.pending = nil
}

func (f *fakeConn) ops() []string {
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = strings.TrimPrefix(r.subject, SubjectRequestPrefix)
	}
	return out
}

func TestClient_RequiresOpenSession(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)

	if c.Connected() {
		t.Error("New client should not be connected")
	}
	if err := c.RemoveObject(5, types.RequestRemoveMarkers); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if len(conn.requests) != 0 {
		t.Errorf("No request should be sent without a session, got %d", len(conn.requests))
	}
}

func TestClient_OpenAndClose(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)

	if err := c.Open("FlightpediaConnect"); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if !c.Connected() {
		t.Error("Expected connected after open")
	}
	if conn.requests[0].payload["name"] != "FlightpediaConnect" {
		t.Errorf("Unexpected open payload %v", conn.requests[0].payload)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if c.Connected() {
		t.Error("Expected disconnected after close")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}
	if len(conn.requests) != 2 {
		t.Errorf("Expected 2 requests, got %d", len(conn.requests))
	}
}

func TestClient_HostError(t *testing.T) {
	conn := newFakeConn()
	conn.fail["open"] = 0x80004005
	c := New(conn, nil)

	err := c.Open("test")
	var hostErr *HostError
	if !errors.As(err, &hostErr) {
		t.Fatalf("Expected HostError, got %v", err)
	}
	if hostErr.Op != "open" || hostErr.Status != 0x80004005 {
		t.Errorf("Unexpected host error %+v", hostErr)
	}
	if !strings.Contains(err.Error(), "0x80004005") {
		t.Errorf("Error should carry the status code: %v", err)
	}
	if c.Connected() {
		t.Error("Failed open should leave the client disconnected")
	}
}

func TestClient_RuntimeOpsDoNotWait(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)
	_ = c.Open("test")

	pos := types.GroundPosition(types.Coordinate{Latitude: 1, Longitude: 2})
	calls := []struct {
		op string
		fn func() error
	}{
		{"create_object", func() error { return c.CreateObject("laser_red", pos, types.RequestAddMarkers) }},
		{"remove_object", func() error { return c.RemoveObject(42, types.RequestRemoveMarkers) }},
		{"request_data", func() error {
			return c.RequestDataOnce(types.RequestUserPosForCube, types.DefinitionUserPosition)
		}},
		{"calculator_code", func() error { return c.ExecuteCalculatorCode("1 (>L:WFP_NEXT_POI_SOUND)") }},
	}
	for i, call := range calls {
		if err := call.fn(); err != nil {
			t.Fatalf("%s failed: %v", call.op, err)
		}
		r := conn.requests[i+1]
		if r.waited {
			t.Errorf("%s should be published without waiting", call.op)
		}
		if r.subject != SubjectRequestPrefix+call.op {
			t.Errorf("Unexpected subject %q", r.subject)
		}
		if !strings.HasPrefix(r.reply, c.inbox+"."+call.op+".") {
			t.Errorf("%s: unexpected reply subject %q", call.op, r.reply)
		}
	}
	if !conn.requests[0].waited {
		t.Error("Open should wait for the bridge")
	}
}

func TestClient_FailedReplyBecomesException(t *testing.T) {
	conn := newFakeConn()
	conn.fail["create_object"] = 0x80004005
	c := New(conn, nil)
	_ = c.Open("test")

	var got []types.Notification
	if err := c.Notifications(func(n types.Notification) { got = append(got, n) }); err != nil {
		t.Fatalf("Notifications() failed: %v", err)
	}

	pos := types.GroundPosition(types.Coordinate{Latitude: 1, Longitude: 2})
	if err := c.RemoveObject(42, types.RequestRemoveMarkers); err != nil {
		t.Fatalf("RemoveObject() failed: %v", err)
	}
	if err := c.CreateObject("laser_red", pos, types.RequestAddMarkers); err != nil {
		t.Fatalf("CreateObject() should not report the host status, got %v", err)
	}
	conn.deliverReplies()

	if len(got) != 1 {
		t.Fatalf("Expected only the failed reply surfaced, got %d", len(got))
	}
	exc, ok := got[0].(types.Exception)
	if !ok || exc.Exception != 0x80004005 || exc.SendID != 2 {
		t.Errorf("Unexpected notification %#v", got[0])
	}
}

func TestClient_NoRespondersBecomesException(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)
	_ = c.Open("test")

	var got []types.Notification
	if err := c.Notifications(func(n types.Notification) { got = append(got, n) }); err != nil {
		t.Fatalf("Notifications() failed: %v", err)
	}

	cb := conn.replyHandler()
	if cb == nil {
		t.Fatal("Expected a subscription on the reply inbox")
	}
	cb(&nats.Msg{Subject: c.inbox + ".calculator_code.9", Header: nats.Header{"Status": []string{"503"}}})
	cb(&nats.Msg{Subject: c.inbox + ".calculator_code.10", Data: []byte("not json")})

	if len(got) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(got))
	}
	if exc, ok := got[0].(types.Exception); !ok || exc.SendID != 9 {
		t.Errorf("Unexpected notification %#v", got[0])
	}
}

func TestClient_TransportError(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)
	_ = c.Open("test")
	conn.err = nats.ErrConnectionClosed

	err := c.ExecuteCalculatorCode("1 (>L:WFP_NEXT_POI_SOUND)")
	if !errors.Is(err, nats.ErrConnectionClosed) {
		t.Errorf("Expected wrapped publish error, got %v", err)
	}
}

func TestClient_CreateObjectPayload(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)
	_ = c.Open("test")

	pos := types.InitPosition{Latitude: 40.7, Longitude: -74.0, OnGround: true}
	if err := c.CreateObject("laser_red", pos, types.RequestAddMarkers); err != nil {
		t.Fatalf("CreateObject() failed: %v", err)
	}

	got := conn.requests[1]
	if got.subject != "sim.request.create_object" {
		t.Errorf("Unexpected subject %q", got.subject)
	}
	if got.payload["title"] != "laser_red" || got.payload["request_id"] != float64(101) {
		t.Errorf("Unexpected payload %v", got.payload)
	}
	position, ok := got.payload["position"].(map[string]any)
	if !ok || position["latitude"] != 40.7 || position["on_ground"] != true {
		t.Errorf("Unexpected position %v", got.payload["position"])
	}
}

func TestClient_RequestDataOnce(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)
	_ = c.Open("test")

	if err := c.RequestDataOnce(types.RequestUserPosForCube, types.DefinitionUserPosition); err != nil {
		t.Fatalf("RequestDataOnce() failed: %v", err)
	}
	p := conn.requests[1].payload
	if p["request_id"] != float64(301) || p["definition_id"] != float64(2001) ||
		p["object_id"] != float64(0) || p["period"] != float64(types.PeriodOnce) {
		t.Errorf("Unexpected payload %v", p)
	}
}

func TestClient_Notifications(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)

	var got []types.Notification
	if err := c.Notifications(func(n types.Notification) { got = append(got, n) }); err != nil {
		t.Fatalf("Notifications() failed: %v", err)
	}
	defer c.Unsubscribe()
	cb := conn.handlers[SubjectNotify]
	if cb == nil {
		t.Fatal("Expected a subscription on the notify subject")
	}

	cb(&nats.Msg{Data: []byte(`{"kind":"assigned_object_id","request_id":101,"object_id":42}`)})
	cb(&nats.Msg{Data: []byte(`not json`)})
	cb(&nats.Msg{Data: []byte(`{"kind":"event","event_id":3}`)})

	if len(got) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(got))
	}
	if ack, ok := got[0].(types.AssignedObjectID); !ok || ack.ObjectID != 42 || ack.RequestID != 101 {
		t.Errorf("Unexpected first notification %#v", got[0])
	}
	if evt, ok := got[1].(types.Event); !ok || evt.EventID != types.EventTriggerM {
		t.Errorf("Unexpected second notification %#v", got[1])
	}
}

func TestSetup(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)

	if err := Setup(c, "FlightpediaConnect"); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}

	counts := map[string]int{}
	for _, op := range conn.ops() {
		counts[op]++
	}
	want := map[string]int{
		"open":              1,
		"subscribe_event":   3,
		"map_client_event":  2,
		"map_input_event":   2,
		"add_to_group":      2,
		"group_priority":    1,
		"input_group_state": 1,
		"add_to_definition": 8,
		"request_data":      4,
	}
	for op, n := range want {
		if counts[op] != n {
			t.Errorf("%s: %d requests, want %d", op, counts[op], n)
		}
	}

	// the cube trigger is sampled on change only
	for _, r := range conn.requests {
		if r.subject != SubjectRequestPrefix+"request_data" {
			continue
		}
		wantFlags := float64(types.DataRequestDefault)
		if r.payload["request_id"] == float64(types.RequestLVarSpawnCube) {
			wantFlags = float64(types.DataRequestChanged)
		}
		if r.payload["flags"] != wantFlags {
			t.Errorf("request %v: flags %v, want %v", r.payload["request_id"], r.payload["flags"], wantFlags)
		}
	}
}

func TestSetup_OpenFailureIsFatal(t *testing.T) {
	conn := newFakeConn()
	conn.fail["open"] = 0x80004005
	c := New(conn, nil)

	if err := Setup(c, "FlightpediaConnect"); err == nil {
		t.Fatal("Expected Setup() to fail when open fails")
	}
	if len(conn.requests) != 1 {
		t.Errorf("Setup should stop after a failed open, sent %d requests", len(conn.requests))
	}
}

func TestSetup_StepFailureIsNotFatal(t *testing.T) {
	conn := newFakeConn()
	conn.fail["subscribe_event"] = 0x80004005
	c := New(conn, nil)

	if err := Setup(c, "FlightpediaConnect"); err != nil {
		t.Fatalf("Setup() should tolerate step failures, got %v", err)
	}
	if !c.Connected() {
		t.Error("Expected session to stay open")
	}
}

func TestShutdown(t *testing.T) {
	conn := newFakeConn()
	c := New(conn, nil)
	Shutdown(c)
	if len(conn.requests) != 0 {
		t.Error("Shutdown without a session should send nothing")
	}

	_ = c.Open("test")
	Shutdown(c)
	ops := conn.ops()
	if len(ops) != 3 || ops[1] != "input_group_state" || ops[2] != "close" {
		t.Errorf("Unexpected shutdown sequence %v", ops)
	}
	if conn.requests[1].payload["on"] != false {
		t.Errorf("Expected input group disabled, got %v", conn.requests[1].payload)
	}
}
