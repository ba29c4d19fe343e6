package commbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

const (
	// EventFromPanel is the bus event the panel sends on
	EventFromPanel = "OnMessageFromJs"
	// EventToPanel is the bus event the module replies on
	EventToPanel = "OnMessageFromWasm"

	SubjectFromPanel = "commbus." + EventFromPanel
	SubjectToPanel   = "commbus." + EventToPanel

	StreamName = "COMMBUS"

	// ReadyMessage is announced once the module is up
	ReadyMessage = "WASM ready"
	// AckPrefix prefixes the echo of every inbound message
	AckPrefix = "ack: "
)

// Client is the panel message channel over NATS JetStream
type Client struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	ownConn bool
}

// New connects to NATS and creates the channel
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c, err := NewWithConn(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.ownConn = true
	return c, nil
}

// NewWithConn creates the channel over an existing connection
func NewWithConn(nc *nats.Conn) (*Client, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectFromPanel, SubjectToPanel},
		Storage:  nats.MemoryStorage,
		MaxAge:   time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// Publish sends text to the panel
func (c *Client) Publish(text string) error {
	if _, err := c.js.Publish(SubjectToPanel, []byte(text)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Announce sends the readiness message
func (c *Client) Announce() error {
	return c.Publish(ReadyMessage)
}

// Ack echoes msg back to the panel
func (c *Client) Ack(msg string) error {
	return c.Publish(AckPrefix + msg)
}

// Subscribe delivers new panel messages to handler
func (c *Client) Subscribe(handler func(types.PanelMessage)) error {
	sub, err := c.js.Subscribe(SubjectFromPanel, func(msg *nats.Msg) {
		ts := time.Now().UTC()
		if meta, err := msg.Metadata(); err == nil {
			ts = meta.Timestamp
		}
		handler(types.PanelMessage{Text: string(msg.Data), Timestamp: ts})
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.sub = sub
	return nil
}

// Close unsubscribes and, if the client opened it, closes the connection
func (c *Client) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.ownConn && c.conn != nil {
		c.conn.Close()
	}
}
