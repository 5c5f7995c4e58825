// opstrack runs the recorder against a simulated game host driven from a
// stdin console.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/opstrack/recorder/internal/app"
	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/dispatcher"
	"github.com/opstrack/recorder/internal/influx"
	"github.com/opstrack/recorder/internal/logging"
	intOtel "github.com/opstrack/recorder/internal/otel"
	"github.com/opstrack/recorder/internal/scheduler"
)

// version is set by ldflags at build time.
var version = "dev"

var (
	configDir     string
	worldFile     string
	statusFile    string
	identityDelay time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "opstrack",
	Short:         "Record gameplay telemetry from a simulated host",
	Long:          "Runs the OpsTrack recorder against an in-process simulated host.\nPlayers, movement and combat are driven from the console; recordings are\nstarted with opstrack_start as they would be over RCON.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRecorder,
}

func init() {
	rootCmd.Flags().StringVar(&configDir, "config-dir", ".", "Directory holding "+config.FileName)
	rootCmd.Flags().StringVar(&worldFile, "world", "worlds/Eden/Eden.ent", "World file reported by the simulated host")
	rootCmd.Flags().StringVar(&statusFile, "status-file", "", "Rewrite pipeline status to this JSON file on every monitor report")
	rootCmd.Flags().DurationVar(&identityDelay, "identity-delay", 300*time.Millisecond, "Delay before a joined player's identity resolves")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runRecorder(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogs := logging.NewSlogManager()
	slogs.Setup(logging.Options{Level: "info"})
	logger := slogs.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	settings, err := config.Decode()
	if err != nil {
		return err
	}
	warnings, validateErr := settings.Validate()

	if err := os.MkdirAll(settings.LogsDir, 0o755); err != nil {
		return fmt.Errorf("error creating logs dir: %w", err)
	}
	logFile, err := logging.OpenDailyFile(settings.LogsDir, time.Now())
	if err != nil {
		return err
	}
	defer logFile.Close()

	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:        settings.Otel.Enabled,
		ServiceName:    settings.Otel.ServiceName,
		BatchTimeout:   settings.Otel.BatchTimeout,
		MetricInterval: settings.Otel.MetricInterval,
		LogWriter:      logFile,
		Endpoint:       settings.Otel.Endpoint,
		Insecure:       settings.Otel.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize OTel provider", "error", err)
	}

	var gelfWriter io.Writer
	if settings.Graylog.Enabled {
		w, err := logging.NewGelfWriter(settings.Graylog.Address)
		if err != nil {
			logger.Error("Failed to connect to Graylog", "address", settings.Graylog.Address, "error", err)
		} else {
			defer w.Close()
			gelfWriter = w
		}
	}

	// The recorder is built after logging; the context provider reads it
	// once it exists.
	var recorder atomic.Pointer[app.App]
	var logProvider *sdklog.LoggerProvider
	if otelProvider != nil && otelProvider.Enabled() {
		logProvider = otelProvider.LoggerProvider()
	}
	slogs.Setup(logging.Options{
		File:     logFile,
		Level:    settings.LogLevel,
		Debug:    settings.Debug,
		Gelf:     gelfWriter,
		Provider: logProvider,
		Context: func() []slog.Attr {
			if a := recorder.Load(); a != nil {
				return a.LogAttrs()
			}
			return nil
		},
	})
	logger = slogs.Logger()
	logger.Info("Starting up...", "version", version, "config", config.Path())
	for _, w := range warnings {
		logger.Warn("Config warning", "warning", w)
	}

	store := config.NewStore(settings)
	store.Subscribe(func(s *config.Snapshot) {
		slogs.SetLevel(s.Settings.LogLevel, s.Settings.Debug)
	})
	if settings.Watch.Watch && config.Path() != "" {
		w, err := config.NewWatcher(store, config.Path(), logger)
		if err != nil {
			logger.Error("Failed to watch config file", "error", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("Config watcher stopped", "error", err)
				}
			}()
		}
	}

	var influxManager *influx.Manager
	if settings.Influx.Enabled {
		backupPath := filepath.Join(settings.LogsDir, fmt.Sprintf("influx_backup_%s.log.gzip", time.Now().Format("20060102_150405")))
		influxManager = influx.NewManager(settings.Influx, logging.NewZerolog(logFile, settings.LogLevel), backupPath)
		if err := influxManager.Connect(); err != nil {
			logger.Error("Failed to set up InfluxDB", "error", err)
			influxManager = nil
		} else {
			defer influxManager.Close()
		}
	}

	loop := scheduler.NewLoop(logger)
	loop.Start()
	defer loop.Stop()

	sim := newSimHost(worldFile, identityDelay)

	var d *dispatcher.Dispatcher
	var hk hooks = nopHooks{}
	if validateErr != nil {
		logger.Warn("Telemetry disabled", "error", validateErr)
	} else {
		opts := app.Options{
			Host:       sim,
			Sched:      loop,
			Logger:     logger,
			StatusPath: statusFile,
		}
		if influxManager != nil {
			opts.Influx = influxManager
		}
		a, err := app.New(store, opts)
		if err != nil {
			logger.Error("Telemetry disabled", "error", err)
		} else {
			recorder.Store(a)
			a.Start()
			d = a.Dispatcher()
			hk = a
		}
	}
	if d == nil {
		if d, err = dispatcher.New(logging.NewDispatcherLogger(logger)); err != nil {
			return err
		}
	}
	registerSimCommands(d, sim, hk)

	c := &console{in: cmd.InOrStdin(), out: cmd.OutOrStdout(), d: d, sim: sim}
	err = c.Run(ctx)
	logger.Info("Shutting down...")
	if a := recorder.Load(); a != nil {
		if cerr := a.Close(); cerr != nil {
			logger.Error("Failed to close recorder", "error", cerr)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := slogs.Flush(flushCtx); ferr != nil {
		logger.Warn("Failed to flush logs", "error", ferr)
	}
	if otelProvider != nil {
		if serr := otelProvider.Shutdown(flushCtx); serr != nil {
			logger.Warn("Failed to shut down OTel provider", "error", serr)
		}
	}
	return err
}
