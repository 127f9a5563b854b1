// Package push implements realtime notification delivery over a persistent
// websocket connection, with automatic reconnection.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	bridgeerrors "github.com/opengate/bridge/internal/common/errors"
	"github.com/opengate/bridge/internal/common/logger"
	"github.com/opengate/bridge/internal/events/bus"
	v1 "github.com/opengate/bridge/pkg/api/v1"
)

// State is the connection lifecycle state. Transitions:
// Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting -> ...
// Stopped is terminal and reachable only via Stop.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

const (
	backoffFloor   = 1 * time.Second
	backoffCeiling = 60 * time.Second
	keepaliveEvery = 30 * time.Second
	writeWait      = 10 * time.Second
	dialTimeout    = 10 * time.Second
)

// subscribeMessage names the logical channel and optional project scope.
type subscribeMessage struct {
	Type      string   `json:"type"`
	Channels  []string `json:"channels"`
	ProjectID string   `json:"project_id,omitempty"`
}

// Handler receives one event per websocket message, synchronously with
// receipt and in wire order.
type Handler func(event v1.Event)

// Client maintains the websocket connection to the server's event stream.
type Client struct {
	serverURL string
	apiKey    string
	projectID string
	handler   Handler
	eventBus  bus.EventBus // optional republish target
	logger    *logger.Logger
	dialer    *websocket.Dialer

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	keepaliveStop  chan struct{}
	backoff        time.Duration
	generation     uint64 // invalidates callbacks from superseded connections
	wg             sync.WaitGroup
}

// Option configures a push client.
type Option func(*Client)

// WithProjectID scopes the subscription to one project.
func WithProjectID(projectID string) Option {
	return func(c *Client) { c.projectID = projectID }
}

// WithEventBus republishes every delivered event on the local bus.
func WithEventBus(b bus.EventBus) Option {
	return func(c *Client) { c.eventBus = b }
}

// NewClient creates a push transport client.
func NewClient(serverURL, apiKey string, handler Handler, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		handler:   handler,
		logger:    log.WithFields(zap.String("component", "push-transport")),
		dialer:    &websocket.Dialer{HandshakeTimeout: dialTimeout},
		state:     StateDisconnected,
		backoff:   backoffFloor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the connection. Starting an already-running or stopped client
// is an error; a stopped client stays stopped.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return bridgeerrors.Config(fmt.Sprintf("push transport cannot start from state '%s'", state))
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.connect()
	return nil
}

// Stop tears the connection down and suppresses any pending reconnection.
// It is idempotent; no handler invocations occur after Stop returns.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	c.generation++

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopKeepaliveLocked()

	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}

	c.wg.Wait()
	c.logger.Info("push transport stopped")
}

// connect dials the stream endpoint. A synchronous dial failure is treated
// the same as a dropped connection.
func (c *Client) connect() {
	wsURL, err := streamURL(c.serverURL)
	if err != nil {
		c.logger.Error("invalid server URL for stream endpoint", zap.Error(err))
		c.scheduleReconnect()
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	conn, resp, err := c.dialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("stream connection failed", zap.String("url", wsURL), zap.Error(err))
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.state = StateConnected
	c.conn = conn
	c.backoff = backoffFloor
	c.generation++
	gen := c.generation
	c.keepaliveStop = make(chan struct{})
	stop := c.keepaliveStop
	c.mu.Unlock()

	c.logger.Info("stream connected", zap.String("url", wsURL))

	if err := c.subscribe(conn); err != nil {
		c.logger.Warn("subscribe failed", zap.Error(err))
		_ = conn.Close()
		c.onConnectionLost(gen)
		return
	}

	c.wg.Add(2)
	go c.keepaliveLoop(conn, stop)
	go c.readLoop(conn, gen)
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	msg := subscribeMessage{
		Type:      "subscribe",
		Channels:  []string{"agent.notifications"},
		ProjectID: c.projectID,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// readLoop delivers events in wire order until the connection drops.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("stream read error", zap.Error(err))
			}
			c.onConnectionLost(gen)
			return
		}

		var event v1.Event
		if err := json.Unmarshal(data, &event); err != nil {
			// Protocol error: discard the single offending message.
			c.logger.Warn("discarding malformed stream message", zap.Error(err))
			continue
		}

		// Keepalive echoes carry no payload worth delivering.
		if event.Type == "ping" || event.Type == "pong" {
			continue
		}

		if !c.stillCurrent(gen) {
			return
		}

		c.handler(event)
		c.republish(event)
	}
}

// keepaliveLoop sends a ping message every keepalive interval while the
// connection is open. A failed write closes the connection, which the read
// loop observes.
func (c *Client) keepaliveLoop(conn *websocket.Conn, stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				c.logger.Debug("keepalive write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// onConnectionLost handles Closed/Errored transitions for the connection
// identified by gen. Stale generations are ignored so a superseded read loop
// cannot disturb a newer connection.
func (c *Client) onConnectionLost(gen uint64) {
	c.mu.Lock()
	if c.state == StateStopped || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.stopKeepaliveLocked()
	c.conn = nil
	c.mu.Unlock()

	c.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect attempt after the current
// backoff delay, then doubles the delay up to the ceiling.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}
	c.state = StateReconnecting

	delay := c.backoff
	c.backoff = nextBackoff(c.backoff)

	c.logger.Info("scheduling stream reconnect", zap.Duration("delay", delay))

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.reconnectTimer = nil
		c.mu.Unlock()

		c.connect()
	})
}

// nextBackoff doubles the reconnect delay up to the ceiling.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCeiling {
		d = backoffCeiling
	}
	return d
}

func (c *Client) stillCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateStopped && gen == c.generation
}

// stopKeepaliveLocked cancels the keepalive probe. Callers must hold c.mu.
func (c *Client) stopKeepaliveLocked() {
	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}
}

func (c *Client) republish(event v1.Event) {
	if c.eventBus == nil {
		return
	}
	ev := bus.NewEvent(event.Type, "push", map[string]interface{}{
		"task_id":    event.TaskID,
		"project_id": event.ProjectID,
		"title":      event.Title,
	})
	if err := c.eventBus.Publish(context.Background(), bus.SubjectFor(event.Type), ev); err != nil {
		c.logger.Debug("event republish failed", zap.Error(err))
	}
}

// streamURL derives the websocket endpoint from the REST base URL by
// swapping the scheme and appending the stream path.
func streamURL(serverURL string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme '%s'", parsed.Scheme)
	}
	parsed.Path = "/api/ws"
	parsed.RawQuery = ""
	return parsed.String(), nil
}
