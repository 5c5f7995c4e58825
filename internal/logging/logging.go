package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DailyLogPath builds the log file path for the day of now, e.g.
// OpsTrackLogs/OpsTrack_2025-12-22.log.
func DailyLogPath(logsDir string, now time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("OpsTrack_%s.log", now.UTC().Format("2006-01-02")))
}

// OpenDailyFile creates logsDir if needed and opens today's log for appending.
func OpenDailyFile(logsDir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	path := DailyLogPath(logsDir, now)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
