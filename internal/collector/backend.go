package collector

import (
	"fmt"
	"log/slog"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/database"
	"github.com/opstrack/recorder/internal/storage"
	gormstorage "github.com/opstrack/recorder/internal/storage/gorm"
	"github.com/opstrack/recorder/internal/storage/memory"
)

// NewBackend creates and initializes the storage backend named by
// collector.storage.
func NewBackend(set config.Settings, logger *slog.Logger) (storage.Backend, error) {
	var b storage.Backend
	switch set.Collector.Storage {
	case "", "memory":
		b = memory.New()
	case "sqlite":
		db, err := database.OpenSqlite(set.Collector.SqlitePath)
		if err != nil {
			return nil, err
		}
		b = gormstorage.New(db, logger)
	case "postgres":
		db, err := database.OpenPostgres(set.DB)
		if err != nil {
			return nil, err
		}
		b = gormstorage.New(db, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", set.Collector.Storage)
	}

	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", set.Collector.Storage, err)
	}
	return b, nil
}
