// opstrack-collector is the reference collector: it accepts recorder
// batches over HTTP or websocket and stores them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opstrack/recorder/internal/collector"
	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/logging"
)

// version is set by ldflags at build time.
var version = "dev"

var (
	configDir   string
	listenAddr  string
	storageType string
)

var rootCmd = &cobra.Command{
	Use:           "opstrack-collector",
	Short:         "Reference collector for OpsTrack recorders",
	Long:          "Serves /events, /missions, /missions/{id}/end, /healthcheck and /ws\nand stores what it receives in memory, SQLite or Postgres.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <missionId>",
	Short: "Print what is stored for a mission",
	Long:  "Prints record counts for a mission. An empty id (\"\") counts records received outside any mission.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "", "Override collector.storage (memory, sqlite, postgres)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Override collector.listen")
	rootCmd.AddCommand(summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadSettings() (config.Settings, *slog.Logger, error) {
	slogs := logging.NewSlogManager()
	slogs.Setup(logging.Options{Level: "info"})

	if err := config.Load(configDir); err != nil {
		slogs.Logger().Warn("Failed to load config, using defaults!", "error", err)
	}
	set, err := config.Decode()
	if err != nil {
		return config.Settings{}, nil, err
	}
	if storageType != "" {
		set.Collector.Storage = storageType
	}
	if listenAddr != "" {
		set.Collector.Listen = listenAddr
	}

	opts := logging.Options{Level: set.LogLevel, Debug: set.Debug}
	if set.Graylog.Enabled {
		w, err := logging.NewGelfWriter(set.Graylog.Address)
		if err != nil {
			slogs.Logger().Error("Failed to connect to Graylog", "address", set.Graylog.Address, "error", err)
		} else {
			opts.Gelf = w
		}
	}
	if err := os.MkdirAll(set.LogsDir, 0o755); err == nil {
		if f, err := logging.OpenDailyFile(set.LogsDir, time.Now()); err == nil {
			opts.File = f
		}
	}
	slogs.Setup(opts)
	return set, slogs.Logger().With("component", "collector"), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	set, logger, err := loadSettings()
	if err != nil {
		return err
	}
	if set.Collector.APIKey == "" {
		logger.Warn("collector.apiKey is empty, accepting unauthenticated requests")
	}

	backend, err := collector.NewBackend(set, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	srv, err := collector.New(backend, set.Collector.APIKey, logger)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting collector", "version", version, "storage", set.Collector.Storage)
	return srv.Serve(ctx, set.Collector.Listen)
}

func runSummary(cmd *cobra.Command, args []string) error {
	set, logger, err := loadSettings()
	if err != nil {
		return err
	}
	if set.Collector.Storage == "" || set.Collector.Storage == "memory" {
		return fmt.Errorf("summary needs persistent storage, collector.storage is %q", set.Collector.Storage)
	}

	backend, err := collector.NewBackend(set, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	sum, err := backend.Summary(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
