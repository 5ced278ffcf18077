// Package stream maintains a live subscription to server-pushed agent
// events, tolerating transient network failures with bounded reconnects.
package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adlens-ai/adlens/pkg/models"
)

// Defaults applied by New for unset Config fields.
const (
	DefaultHeartbeat      = 30 * time.Second
	DefaultReconnectDelay = 3 * time.Second
	DefaultMaxReconnects  = 5
	DefaultBuffer         = 100
)

var pingMessage = []byte(`{"type":"ping"}`)

// Config controls a stream Client. Exactly one of AgentID or WorkspaceID
// selects the subscription scope.
type Config struct {
	URL              string // base URL of the insights API, http(s) or ws(s) scheme
	AgentID          string
	WorkspaceID      string
	Heartbeat        time.Duration
	ReconnectDelay   time.Duration
	MaxReconnects    int
	Buffer           int
	HandshakeTimeout time.Duration
}

// Client subscribes to agent events over a websocket, buffering the most
// recent events and reconnecting after abnormal closures. State changes
// come only from connect/close handling; transport errors are observable
// via Err but do not by themselves change state.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu             sync.Mutex
	state          models.ConnectionState
	conn           *websocket.Conn
	token          string
	attempts       int
	closing        bool
	lastErr        error
	events         []models.StreamEvent
	lastEvent      *models.StreamEvent
	lastAlive      time.Time
	reconnectTimer *time.Timer
	hbStop         chan struct{}
}

// New creates a disconnected Client.
func New(cfg Config) *Client {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = DefaultMaxReconnects
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:  models.StateDisconnected,
	}
}

// Connect starts a subscription using the given credential. It fails
// synchronously when no agent or workspace scope is configured; the
// actual dial happens in the background and is observable via State.
func (c *Client) Connect(token string) error {
	c.mu.Lock()

	if c.cfg.AgentID == "" && c.cfg.WorkspaceID == "" {
		c.state = models.StateError
		c.lastErr = fmt.Errorf("stream: agent or workspace scope required")
		err := c.lastErr
		c.mu.Unlock()
		return err
	}
	if c.state == models.StateConnecting || c.state == models.StateConnected || c.state == models.StateReconnecting {
		c.mu.Unlock()
		return nil
	}

	c.token = token
	c.closing = false
	c.attempts = 0
	c.lastErr = nil
	c.state = models.StateConnecting
	c.mu.Unlock()

	go c.dial(token)
	return nil
}

// streamURL builds the subscription URL for the configured scope.
func (c *Client) streamURL(token string) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := url.Values{}
	q.Set("token", token)
	if c.cfg.AgentID != "" {
		u.Path = "/api/v1/agents/" + c.cfg.AgentID + "/stream"
	} else {
		u.Path = "/api/v1/agents/workspace/stream"
		q.Set("workspace_id", c.cfg.WorkspaceID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dial(token string) {
	target, err := c.streamURL(token)
	if err != nil {
		c.mu.Lock()
		c.state = models.StateError
		c.lastErr = err
		c.mu.Unlock()
		return
	}

	conn, resp, err := c.dialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		// A failed dial counts like an abnormal closure.
		c.lastErr = err
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.state = models.StateConnected
	c.attempts = 0
	c.lastAlive = time.Now()
	hbStop := make(chan struct{})
	c.hbStop = hbStop
	c.mu.Unlock()

	go c.heartbeat(conn, hbStop)
	go c.readLoop(conn)
}

// scheduleReconnectLocked arms the reconnect timer, or gives up once
// the attempt counter reaches the configured maximum. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	c.stopHeartbeatLocked()
	if c.attempts >= c.cfg.MaxReconnects {
		c.state = models.StateDisconnected
		return
	}
	c.attempts++
	c.state = models.StateReconnecting
	token := c.token
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		if c.closing || c.state != models.StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.state = models.StateConnecting
		c.mu.Unlock()
		c.dial(token)
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleMessage(data)
	}
}

// handleClose drives the state machine from a closed socket. Normal
// closure and explicit disconnects are terminal; anything else retries.
func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return // stale read loop from an earlier connection
	}
	c.conn = nil
	conn.Close()

	if c.closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.stopHeartbeatLocked()
		c.state = models.StateDisconnected
		return
	}

	c.lastErr = err
	c.scheduleReconnectLocked()
}

// handleMessage parses one inbound message. Pong messages only refresh
// liveness; everything else is prepended to the bounded event buffer.
// Malformed payloads are logged and dropped.
func (c *Client) handleMessage(data []byte) {
	var head struct {
		Type models.EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type == "" {
		log.Printf("stream: dropping malformed message: %.64s", data)
		return
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastAlive = now
	if head.Type == models.EventPong {
		return
	}

	evt := models.StreamEvent{
		Type:       head.Type,
		Payload:    json.RawMessage(append([]byte(nil), data...)),
		ReceivedAt: now,
	}
	c.events = append([]models.StreamEvent{evt}, c.events...)
	if len(c.events) > c.cfg.Buffer {
		c.events = c.events[:c.cfg.Buffer]
	}
	c.lastEvent = &evt
}

func (c *Client) heartbeat(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, pingMessage); err != nil {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// Disconnect closes the subscription with the normal-closure code and
// cancels any pending reconnect. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.state = models.StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
}

// State returns the current connection state.
func (c *Client) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the buffered events, most recent first.
func (c *Client) Events() []models.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.StreamEvent, len(c.events))
	copy(out, c.events)
	return out
}

// LastEvent returns the most recently buffered event, or nil.
func (c *Client) LastEvent() *models.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEvent
}

// LastAlive returns the time of the last inbound message, pongs included.
func (c *Client) LastAlive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAlive
}

// Attempts returns the current reconnect attempt counter.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Err returns the last transport error observed, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearEvents empties the event buffer without touching the connection.
func (c *Client) ClearEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.lastEvent = nil
}
