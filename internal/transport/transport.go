// Package transport delivers serialized payloads to the collector and reports
// the outcome asynchronously.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotConnected is reported when no connection to the collector exists.
var ErrNotConnected = errors.New("transport not connected")

// Result is the outcome of one Post.
type Result struct {
	StatusCode int // 0 when the collector was unreachable
	Body       []byte
	Timeout    bool
	Err        error
}

// OK reports a 2xx response.
func (r Result) OK() bool {
	return r.Err == nil && !r.Timeout && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Result) String() string {
	switch {
	case r.Timeout:
		return "timeout"
	case r.StatusCode == 0 && r.Err != nil:
		return fmt.Sprintf("unreachable: %v", r.Err)
	default:
		return fmt.Sprintf("status %d", r.StatusCode)
	}
}

// Transport sends a JSON body to a collector path. Post never blocks; done
// is invoked exactly once from another goroutine.
type Transport interface {
	Post(path string, body []byte, done func(Result))
	Close() error
}

// Config selects and configures a Transport.
type Config struct {
	Type         string // "http" or "websocket"
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	WebsocketURL string
}

// WebsocketURLFor derives the collector's websocket endpoint from its HTTP
// base URL.
func WebsocketURLFor(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
