package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/opstrack/recorder/pkg/streaming"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

type pendingPost struct {
	done  func(Result)
	timer *time.Timer
}

// WebsocketClient sends each Post as an envelope over one persistent
// connection and completes it when the matching ack arrives.
type WebsocketClient struct {
	mu      sync.Mutex
	conn    *ws.Conn
	stop    chan struct{} // closed when conn is torn down
	sendCh  chan []byte
	done    chan struct{}
	closed  bool
	pending map[string]*pendingPost

	wsURL      string
	apiKey     string
	ackTimeout time.Duration
	// reconnectDelay is the first backoff step.
	reconnectDelay time.Duration

	logger *slog.Logger
}

// NewWebsocket creates an unconnected client. Call Dial before posting.
func NewWebsocket(wsURL, apiKey string, ackTimeout time.Duration, logger *slog.Logger) *WebsocketClient {
	if logger == nil {
		logger = slog.Default()
	}
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	return &WebsocketClient{
		sendCh:         make(chan []byte, sendChSize),
		done:           make(chan struct{}),
		pending:        make(map[string]*pendingPost),
		wsURL:          wsURL,
		apiKey:         apiKey,
		ackTimeout:     ackTimeout,
		reconnectDelay: time.Second,
		logger:         logger,
	}
}

// Dial connects and starts the read and write loops.
func (c *WebsocketClient) Dial() error {
	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
	return nil
}

func (c *WebsocketClient) dialOnce() (*ws.Conn, error) {
	header := http.Header{}
	header.Set("X-Api-Key", c.apiKey)
	conn, _, err := ws.DefaultDialer.Dial(c.wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// Connected reports whether a connection is currently up.
func (c *WebsocketClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Post wraps body in an envelope and queues it. Without a connection the
// post fails immediately as unreachable.
func (c *WebsocketClient) Post(path string, body []byte, done func(Result)) {
	id := uuid.NewString()
	data, err := streaming.NewPost(id, path, body)
	if err != nil {
		go done(Result{Err: err})
		return
	}

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		go done(Result{Err: ErrNotConnected})
		return
	}
	p := &pendingPost{done: done}
	p.timer = time.AfterFunc(c.ackTimeout, func() {
		if c.take(id) != nil {
			done(Result{Timeout: true, Err: fmt.Errorf("timeout waiting for ack of %s", id)})
		}
	})
	c.pending[id] = p

	// Queued under mu so connectionLost sees either both the pending entry
	// and the envelope, or neither.
	select {
	case c.sendCh <- data:
		c.mu.Unlock()
	default:
		delete(c.pending, id)
		c.mu.Unlock()
		p.timer.Stop()
		go done(Result{Err: fmt.Errorf("websocket send channel full")})
	}
}

// take removes and returns the pending post for id, or nil if another path
// already completed it.
func (c *WebsocketClient) take(id string) *pendingPost {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// failPending completes every outstanding post as unreachable.
func (c *WebsocketClient) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingPost)
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.done(Result{Err: err})
	}
}

func (c *WebsocketClient) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.connectionLost(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.connectionLost(conn)
				return
			}
		}
	}
}

func (c *WebsocketClient) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			c.connectionLost(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		if p := c.take(ack.For); p != nil {
			p.timer.Stop()
			p.done(Result{StatusCode: ack.Status})
		}
	}
}

// connectionLost runs once per connection: whichever loop notices first
// tears it down and starts reconnecting.
func (c *WebsocketClient) connectionLost(conn *ws.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.stop)
	closed := c.closed
	discarded := c.drainSendLocked()
	c.mu.Unlock()

	if discarded > 0 {
		c.logger.Warn("Discarded unsent envelopes", "count", discarded)
	}
	_ = conn.Close()
	c.failPending(ErrNotConnected)
	if !closed {
		go c.reconnect()
	}
}

// drainSendLocked empties sendCh. Its posts are about to be failed, so the
// next connection must not deliver them.
func (c *WebsocketClient) drainSendLocked() int {
	n := 0
	for {
		select {
		case <-c.sendCh:
			n++
		default:
			return n
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (c *WebsocketClient) reconnect() {
	backoff := c.reconnectDelay
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		stop := make(chan struct{})
		c.conn = conn
		c.stop = stop
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.writeLoop(conn, stop)
		go c.readLoop(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// Close sends a close frame, fails outstanding posts and stops all loops.
func (c *WebsocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.failPending(ErrNotConnected)

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
