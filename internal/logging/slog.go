package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "opstrack-recorder"

// Options selects the sinks a SlogManager writes to. Nil writers are skipped.
type Options struct {
	// Console receives warnings and errors, or everything in debug mode.
	// Defaults to os.Stdout.
	Console io.Writer
	// File receives JSON records at Level.
	File  io.Writer
	Level string
	Debug bool
	// Gelf receives records for Graylog.
	Gelf io.Writer
	// Provider enables the OpenTelemetry bridge.
	Provider *sdklog.LoggerProvider
	// Context adds dynamic attributes, e.g. the active mission, to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	consoleLevel slog.LevelVar
	fileLevel    slog.LevelVar

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Setup initializes the logging system. It can be called again to replace
// the sinks, e.g. after the log file rolls over.
func (m *SlogManager) Setup(opts Options) {
	m.logProvider = opts.Provider
	m.SetLevel(opts.Level, opts.Debug)

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var handlers []slog.Handler
	handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{
		Level:       &m.consoleLevel,
		ReplaceAttr: replaceTime,
	}))

	fileOpts := &slog.HandlerOptions{Level: &m.fileLevel, ReplaceAttr: replaceTime}
	if opts.File != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.File, fileOpts))
	}
	if opts.Gelf != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.Gelf, fileOpts))
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(opts.Provider)))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", opts.Level, "debug", opts.Debug)
}

// SetLevel adjusts levels in place so loggers already handed out follow a
// settings reload. The console only shows warnings unless debug is on.
func (m *SlogManager) SetLevel(level string, debug bool) {
	if debug {
		m.consoleLevel.Set(slog.LevelDebug)
		m.fileLevel.Set(slog.LevelDebug)
		return
	}
	m.consoleLevel.Set(slog.LevelWarn)
	m.fileLevel.Set(parseLevel(level))
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry with the specified function name, data, and level.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
