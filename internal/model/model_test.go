package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Mission", &Mission{}, "missions"},
		{"Entity", &Entity{}, "entities"},
		{"EntityAssignment", &EntityAssignment{}, "entity_assignments"},
		{"EntityState", &EntityState{}, "entity_states"},
		{"ConnectionEvent", &ConnectionEvent{}, "connection_events"},
		{"CombatEvent", &CombatEvent{}, "combat_events"},
		{"Ingest", &Ingest{}, "ingests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelsCoverTables(t *testing.T) {
	assert.Len(t, DatabaseModels, 7)
}
