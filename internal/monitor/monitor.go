// Package monitor reports pipeline health on a fixed interval.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/opstrack/recorder/internal/influx"
	"github.com/opstrack/recorder/internal/mission"
	"github.com/opstrack/recorder/internal/pipeline"
)

// DefaultInterval is used when no interval source is configured or the
// configured interval is not positive.
const DefaultInterval = 30 * time.Second

// PointWriter receives monitor points. *influx.Manager implements it.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats      func() pipeline.Stats
	Session    func() mission.Snapshot
	Influx     PointWriter // optional
	Logger     *slog.Logger
	StatusPath string // optional status file, rewritten on every report
	Interval   func() time.Duration
}

// Status is one report.
type Status struct {
	Time        time.Time      `json:"time"`
	State       string         `json:"state"`
	MissionID   string         `json:"missionId,omitempty"`
	Queued      map[string]int `json:"queued"`
	InFlight    int            `json:"inFlight"`
	BreakerOpen bool           `json:"breakerOpen"`
	RetryAt     *time.Time     `json:"retryAt,omitempty"`
	Enqueued    uint64         `json:"enqueued"`
	Rejected    uint64         `json:"rejected"`
	Dropped     uint64         `json:"dropped"`
	Sent        uint64         `json:"sent"`
	Requests    uint64         `json:"requests"`
	Failures    uint64         `json:"failures"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval == nil {
		deps.Interval = func() time.Duration { return DefaultInterval }
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects the current pipeline and session state.
func (s *Service) GetStatus(now time.Time) Status {
	stats := s.deps.Stats()
	st := Status{
		Time:        now.UTC(),
		State:       mission.Idle.String(),
		Queued:      make(map[string]int, len(stats.Queued)),
		InFlight:    stats.InFlight,
		BreakerOpen: stats.BreakerOpen,
		Enqueued:    stats.Enqueued,
		Rejected:    stats.Rejected,
		Dropped:     stats.Dropped,
		Sent:        stats.Sent,
		Requests:    stats.Requests,
		Failures:    stats.Failures,
	}
	for cat, n := range stats.Queued {
		st.Queued[cat.String()] = n
	}
	if stats.BreakerOpen {
		retryAt := stats.RetryAt.UTC()
		st.RetryAt = &retryAt
	}
	if s.deps.Session != nil {
		snap := s.deps.Session()
		st.State = snap.State.String()
		st.MissionID = snap.MissionID
	}
	return st
}

// Point renders a status as an InfluxDB point.
func (st Status) Point() *influxdb2_write.Point {
	tags := map[string]string{"state": st.State}
	if st.MissionID != "" {
		tags["mission"] = st.MissionID
	}
	fields := map[string]any{
		"in_flight":    st.InFlight,
		"breaker_open": st.BreakerOpen,
		"enqueued":     int64(st.Enqueued),
		"rejected":     int64(st.Rejected),
		"dropped":      int64(st.Dropped),
		"sent":         int64(st.Sent),
		"requests":     int64(st.Requests),
		"failures":     int64(st.Failures),
	}
	for cat, n := range st.Queued {
		fields["queued_"+cat] = n
	}
	return influxdb2.NewPoint("pipeline", tags, fields, st.Time)
}

// Report logs one status, rewrites the status file and writes the point.
func (s *Service) Report(now time.Time) Status {
	st := s.GetStatus(now)
	logger := s.deps.Logger

	total := 0
	for _, n := range st.Queued {
		total += n
	}
	logger.Info("Pipeline status",
		"state", st.State,
		"queued", total,
		"inFlight", st.InFlight,
		"breakerOpen", st.BreakerOpen,
		"sent", st.Sent,
		"dropped", st.Dropped,
	)

	if s.deps.StatusPath != "" {
		if err := writeStatusFile(s.deps.StatusPath, st); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketPipeline, st.Point()); err != nil {
			logger.Error("Error writing pipeline point to InfluxDB", "error", err)
		}
	}
	return st
}

func writeStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		interval := s.deps.Interval()
		if interval <= 0 {
			interval = DefaultInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.Report(now)
				if next := s.deps.Interval(); next != interval && next > 0 {
					interval = next
					ticker.Reset(interval)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.isRunning {
		close(s.stopChan)
		s.isRunning = false
	}
	s.mu.Unlock()
	s.wg.Wait()
}
