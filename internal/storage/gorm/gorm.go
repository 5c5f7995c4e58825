// Package gormstorage implements the storage.Backend interface on GORM. The
// same backend serves SQLite and PostgreSQL; the caller opens the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opstrack/recorder/internal/database"
	"github.com/opstrack/recorder/internal/model"
	"github.com/opstrack/recorder/internal/model/convert"
	"github.com/opstrack/recorder/internal/storage"
	"github.com/opstrack/recorder/pkg/core"
)

const stateBatchSize = 1000

// Backend implements storage.Backend using GORM.
type Backend struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a new GORM storage backend.
func New(db *gorm.DB, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{db: db, logger: logger.With("component", "storage", "dialect", db.Name())}
}

// Init runs schema migration.
func (b *Backend) Init() error {
	b.logger.Info("Migrating schema")
	return database.Migrate(b.db)
}

func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

func (b *Backend) StartMission(ms core.MissionStart, at time.Time) error {
	var existing int64
	if err := b.db.Model(&model.Mission{}).Where("mission_id = ?", ms.MissionID).Count(&existing).Error; err != nil {
		return fmt.Errorf("failed to look up mission: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateMission, ms.MissionID)
	}

	m := convert.MissionToGorm(ms, at)
	if err := b.db.Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create mission: %w", err)
	}
	b.logger.Info("Mission started", "missionId", ms.MissionID, "name", ms.Name, "map", ms.MapName)
	return nil
}

func (b *Backend) EndMission(missionID string, at time.Time) error {
	var m model.Mission
	err := b.db.First(&m, "mission_id = ?", missionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrUnknownMission, missionID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up mission: %w", err)
	}
	if m.EndedAt != nil {
		return nil
	}

	if err := b.db.Model(&m).Update("ended_at", at).Error; err != nil {
		return fmt.Errorf("failed to end mission: %w", err)
	}
	b.logger.Info("Mission ended", "missionId", missionID)
	return nil
}

func (b *Backend) IngestBatch(batch *core.Batch, at time.Time) error {
	entities := make([]model.Entity, 0, len(batch.Entities))
	for _, e := range batch.Entities {
		entities = append(entities, convert.EntityToGorm(e, at))
	}
	states := make([]model.EntityState, 0, len(batch.States))
	for _, s := range batch.States {
		states = append(states, convert.EntityStateToGorm(s, batch.MissionID))
	}
	connections := make([]model.ConnectionEvent, 0, len(batch.ConnectionEvents))
	for _, ev := range batch.ConnectionEvents {
		row, err := convert.ConnectionEventToGorm(ev, batch.MissionID)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidBatch, err)
		}
		connections = append(connections, row)
	}
	combat := make([]model.CombatEvent, 0, len(batch.CombatEvents))
	for _, ev := range batch.CombatEvents {
		row, err := convert.CombatEventToGorm(ev, batch.MissionID)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidBatch, err)
		}
		combat = append(combat, row)
	}
	var assignments []model.EntityAssignment
	if batch.MissionID != nil {
		assignments = convert.AssignmentsToGorm(*batch.MissionID, batch.AssignEntityIDs)
	}
	ingest := convert.IngestToGorm(batch, at)

	start := time.Now()
	err := b.db.Transaction(func(tx *gorm.DB) error {
		if len(entities) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entities).Error; err != nil {
				return fmt.Errorf("entities: %w", err)
			}
		}
		if len(assignments) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&assignments).Error; err != nil {
				return fmt.Errorf("assignments: %w", err)
			}
		}
		if len(states) > 0 {
			if err := tx.CreateInBatches(&states, stateBatchSize).Error; err != nil {
				return fmt.Errorf("states: %w", err)
			}
		}
		if len(connections) > 0 {
			if err := tx.Create(&connections).Error; err != nil {
				return fmt.Errorf("connection events: %w", err)
			}
		}
		if len(combat) > 0 {
			if err := tx.Create(&combat).Error; err != nil {
				return fmt.Errorf("combat events: %w", err)
			}
		}
		return tx.Create(&ingest).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}

	b.logger.Debug("Stored batch", "records", batch.Len(), "duration", time.Since(start))
	return nil
}

func (b *Backend) count(table any, missionID string) (int, error) {
	q := b.db.Model(table)
	if missionID == "" {
		q = q.Where("mission_id IS NULL")
	} else {
		q = q.Where("mission_id = ?", missionID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (b *Backend) Summary(missionID string) (storage.Summary, error) {
	var s storage.Summary

	if missionID != "" {
		var m model.Mission
		err := b.db.First(&m, "mission_id = ?", missionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.Summary{}, fmt.Errorf("%w: %s", storage.ErrUnknownMission, missionID)
		}
		if err != nil {
			return storage.Summary{}, fmt.Errorf("failed to look up mission: %w", err)
		}
		s.Mission = convert.MissionToCore(m)
		s.Ended = m.EndedAt != nil

		var assigned int64
		if err := b.db.Model(&model.EntityAssignment{}).Where("mission_id = ?", missionID).Count(&assigned).Error; err != nil {
			return storage.Summary{}, fmt.Errorf("failed to count assignments: %w", err)
		}
		s.Entities = int(assigned)
	} else {
		var all int64
		if err := b.db.Model(&model.Entity{}).Count(&all).Error; err != nil {
			return storage.Summary{}, fmt.Errorf("failed to count entities: %w", err)
		}
		s.Entities = int(all)
	}

	counts := []struct {
		table any
		dst   *int
	}{
		{&model.EntityState{}, &s.States},
		{&model.ConnectionEvent{}, &s.Connections},
		{&model.CombatEvent{}, &s.Combat},
		{&model.Ingest{}, &s.Batches},
	}
	for _, c := range counts {
		n, err := b.count(c.table, missionID)
		if err != nil {
			return storage.Summary{}, fmt.Errorf("failed to count records: %w", err)
		}
		*c.dst = n
	}
	return s, nil
}

// States returns the stored samples of an entity, oldest first.
func (b *Backend) States(entityID string) ([]core.EntityState, error) {
	var rows []model.EntityState
	if err := b.db.Where("entity_id = ?", entityID).Order("time, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}
	out := make([]core.EntityState, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.EntityStateToCore(r))
	}
	return out, nil
}
