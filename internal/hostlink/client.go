package hostlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

const (
	// SubjectRequestPrefix prefixes every host request subject
	SubjectRequestPrefix = "sim.request."
	// SubjectNotify carries host notifications
	SubjectNotify = "sim.notify"

	// DefaultTimeout bounds the wait for a host status reply on session
	// and setup calls
	DefaultTimeout = 2 * time.Second

	noRespondersStatus = "503"
)

var (
	// ErrNotConnected is returned when an action requires an open host session
	ErrNotConnected = errors.New("host session not established")
)

// HostError is a non-success status returned by the host
type HostError struct {
	Op      string
	Status  uint32
	Message string
}

func (e *HostError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("host %s failed (status=0x%08X): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("host %s failed (status=0x%08X)", e.Op, e.Status)
}

// Conn is the subset of *nats.Conn used by the client
type Conn interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
	PublishRequest(subj, reply string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Reply is the bridge's answer to a request
type Reply struct {
	OK     bool   `json:"ok"`
	Status uint32 `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client talks to the simulator bridge over NATS. Session and setup calls
// wait for the bridge's reply. Runtime operations (object creation and
// removal, data requests, calculator code) are published with a reply
// subject under the client inbox and return immediately; a failed status
// reply is delivered later as an Exception notification.
type Client struct {
	conn      Conn
	timeout   time.Duration
	inbox     string
	sendID    atomic.Uint32
	connected atomic.Bool
	log       *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// New creates a host link client over an existing NATS connection
func New(conn Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:    conn,
		timeout: DefaultTimeout,
		inbox:   nats.NewInbox(),
		log:     logger.With("component", "hostlink"),
	}
}

// Connected reports whether a host session is open
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Open opens the host session under the given client name
func (c *Client) Open(name string) error {
	if err := c.call("open", map[string]any{"name": name}); err != nil {
		return err
	}
	c.connected.Store(true)
	return nil
}

// Close closes the host session. Closing a closed session is a no-op.
func (c *Client) Close() error {
	if !c.connected.Load() {
		return nil
	}
	err := c.call("close", nil)
	c.connected.Store(false)
	return err
}

// MarkClosed records that the host ended the session
func (c *Client) MarkClosed() {
	c.connected.Store(false)
}

// SubscribeSystemEvent subscribes id to a named system event
func (c *Client) SubscribeSystemEvent(id types.EventID, name string) error {
	return c.call("subscribe_event", map[string]any{"event_id": id, "name": name})
}

// MapClientEvent maps a client event id to a named sim event
func (c *Client) MapClientEvent(id types.EventID, name string) error {
	return c.call("map_client_event", map[string]any{"event_id": id, "name": name})
}

// MapInputEvent maps a key definition in an input group to a client event
func (c *Client) MapInputEvent(group types.InputGroupID, input string, id types.EventID) error {
	return c.call("map_input_event", map[string]any{"group_id": group, "input": input, "event_id": id})
}

// AddClientEventToGroup adds a client event to a notification group
func (c *Client) AddClientEventToGroup(group types.GroupID, id types.EventID) error {
	return c.call("add_to_group", map[string]any{"group_id": group, "event_id": id})
}

// SetGroupPriority sets the priority of a notification group
func (c *Client) SetGroupPriority(group types.GroupID, priority uint32) error {
	return c.call("group_priority", map[string]any{"group_id": group, "priority": priority})
}

// SetInputGroupState enables or disables an input group
func (c *Client) SetInputGroupState(group types.InputGroupID, on bool) error {
	return c.call("input_group_state", map[string]any{"group_id": group, "on": on})
}

// AddToDataDefinition binds a named variable to a data definition
func (c *Client) AddToDataDefinition(def types.DefinitionID, name, units string, dataType types.DataType) error {
	return c.call("add_to_definition", map[string]any{
		"definition_id": def,
		"name":          name,
		"units":         units,
		"data_type":     dataType,
	})
}

// RequestData starts sampling a definition on an object
func (c *Client) RequestData(req types.RequestID, def types.DefinitionID, object types.ObjectID, period types.Period, flags types.DataRequestFlag) error {
	return c.send("request_data", map[string]any{
		"request_id":    req,
		"definition_id": def,
		"object_id":     object,
		"period":        period,
		"flags":         flags,
	})
}

// RequestDataOnce requests a single sample of a definition on the user object
func (c *Client) RequestDataOnce(req types.RequestID, def types.DefinitionID) error {
	return c.RequestData(req, def, types.ObjectIDUser, types.PeriodOnce, types.DataRequestDefault)
}

// CreateObject requests creation of a simulated object
func (c *Client) CreateObject(title string, pos types.InitPosition, req types.RequestID) error {
	return c.send("create_object", map[string]any{"title": title, "position": pos, "request_id": req})
}

// RemoveObject requests removal of an object
func (c *Client) RemoveObject(id types.ObjectID, req types.RequestID) error {
	return c.send("remove_object", map[string]any{"object_id": id, "request_id": req})
}

// ExecuteCalculatorCode runs a calculator code string on the host
func (c *Client) ExecuteCalculatorCode(code string) error {
	return c.send("calculator_code", map[string]any{"code": code})
}

// Notifications subscribes handler to host notifications and to the status
// replies of runtime operations. Envelopes that cannot be decoded are logged
// and dropped. A failed status reply reaches handler as an Exception whose
// SendID identifies the request.
func (c *Client) Notifications(handler func(types.Notification)) error {
	notify, err := c.conn.Subscribe(SubjectNotify, func(msg *nats.Msg) {
		n, err := DecodeNotification(msg.Data)
		if err != nil {
			c.log.Warn("failed to decode notification", "err", err)
			return
		}
		handler(n)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	replies, err := c.conn.Subscribe(c.inbox+".>", func(msg *nats.Msg) {
		if n, ok := c.decodeReply(msg); ok {
			handler(n)
		}
	})
	if err != nil {
		if notify != nil {
			_ = notify.Unsubscribe()
		}
		return fmt.Errorf("failed to subscribe to host replies: %w", err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, notify, replies)
	c.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscriptions made by Notifications
func (c *Client) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}
	c.subs = nil
}

// decodeReply turns a status reply for a runtime operation into an Exception.
// Successful replies produce nothing.
func (c *Client) decodeReply(msg *nats.Msg) (types.Notification, bool) {
	op, sendID := c.parseReplySubject(msg.Subject)

	if len(msg.Data) == 0 && msg.Header.Get("Status") == noRespondersStatus {
		c.log.Warn("no host bridge for request", "op", op, "send_id", sendID)
		return types.Exception{SendID: sendID}, true
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		c.log.Warn("failed to unmarshal host reply", "op", op, "send_id", sendID, "err", err)
		return nil, false
	}
	if reply.OK {
		return nil, false
	}
	c.log.Warn("host request failed", "err", &HostError{Op: op, Status: reply.Status, Message: reply.Error}, "send_id", sendID)
	return types.Exception{Exception: reply.Status, SendID: sendID}, true
}

// parseReplySubject splits <inbox>.<op>.<send id>
func (c *Client) parseReplySubject(subject string) (string, uint32) {
	rest := strings.TrimPrefix(subject, c.inbox+".")
	op, id, _ := strings.Cut(rest, ".")
	n, _ := strconv.ParseUint(id, 10, 32)
	return op, uint32(n)
}

// send publishes a runtime operation without waiting for the bridge
func (c *Client) send(op string, payload any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	reply := fmt.Sprintf("%s.%s.%d", c.inbox, op, c.sendID.Add(1))
	if err := c.conn.PublishRequest(SubjectRequestPrefix+op, reply, data); err != nil {
		return fmt.Errorf("failed to send %s request: %w", op, err)
	}
	return nil
}

func (c *Client) call(op string, payload any) error {
	if op != "open" && !c.connected.Load() {
		return ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
	}

	msg, err := c.conn.Request(SubjectRequestPrefix+op, data, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", op, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("failed to unmarshal %s reply: %w", op, err)
	}
	if !reply.OK {
		return &HostError{Op: op, Status: reply.Status, Message: reply.Error}
	}
	return nil
}
