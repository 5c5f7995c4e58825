package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNoHandler = errors.New("unknown command")
	ErrNotAdmin  = errors.New("you are not an administrator")
)

// Source is where a command came from.
type Source int

const (
	// SourceRCON is the trusted out-of-band console.
	SourceRCON Source = iota
	// SourceChat is an in-game chat command.
	SourceChat
)

func (s Source) String() string {
	if s == SourceChat {
		return "chat"
	}
	return "rcon"
}

// Caller identifies who issued a command.
type Caller struct {
	Source   Source
	PlayerID int
	IsAdmin  bool
}

// Event represents an incoming command or host hook.
type Event struct {
	Command   string
	Args      []string
	Caller    Caller
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	run       func(func())
	logged    bool
	adminOnly bool
}

// RunOn makes the handler run through run, such as a scheduler's Do, instead
// of directly on the dispatching goroutine. run must not return before the
// function it is given has finished.
func RunOn(run func(fn func())) Option {
	return func(c *config) {
		c.run = run
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// AdminOnly rejects chat callers without the administrator role. RCON is
// always trusted.
func AdminOnly() Option {
	return func(c *config) {
		c.adminOnly = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	denied    metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.denied, err = m.Int64Counter(
		"dispatcher.events.denied",
		metric.WithDescription("Total commands rejected for missing permissions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating denied counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.run != nil {
		handler = withRunner(cfg.run, handler)
	}

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	if cfg.adminOnly {
		handler = d.withAdminCheck(command, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, e.Command)
	}
	d.processed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", e.Command)))
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

func withRunner(run func(func()), h HandlerFunc) HandlerFunc {
	return func(e Event) (result any, err error) {
		run(func() {
			result, err = h(e)
		})
		return result, err
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}

func (d *Dispatcher) withAdminCheck(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		if e.Caller.Source == SourceChat && !e.Caller.IsAdmin {
			d.logger.Warn("command rejected, caller is not an administrator", "command", command, "player", e.Caller.PlayerID)
			d.denied.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
			return nil, ErrNotAdmin
		}
		return h(e)
	}
}
