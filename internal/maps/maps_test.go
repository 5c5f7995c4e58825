package maps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opstrack/recorder/internal/config"
)

func TestLookup(t *testing.T) {
	table := NewTable(nil)

	tests := []struct {
		world string
		want  string
	}{
		{"{59AD59FE94E4E411}Worlds/MP/CTI_Everon.ent", "Everon"},
		{"worlds/eden/eden.ent", "Everon"},
		{"{ABC}Worlds/Arland/GM_Arland.ent", "Arland"},
		{"worlds/Unmapped/Unmapped.ent", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.world, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Lookup(tt.world))
		})
	}
}

func TestLookup_ConfigEntriesWin(t *testing.T) {
	table := NewTable([]config.MapEntry{
		{WorldIdentifier: "CTI_Everon", MapName: "Everon (Conflict)"},
		{WorldIdentifier: "", MapName: "ignored"},
	})

	assert.Equal(t, "Everon (Conflict)", table.Lookup("Worlds/MP/CTI_Everon.ent"))
	assert.Equal(t, "Everon", table.Lookup("Worlds/Everon.ent"))
}

func TestLookupOrFile(t *testing.T) {
	table := NewTable(nil)

	assert.Equal(t, "Everon", table.LookupOrFile("Worlds/MP/CTI_Everon.ent"))
	assert.Equal(t, "Zarichne", table.LookupOrFile(`{1}Worlds\Custom\Zarichne.ent`))
	assert.Equal(t, Unknown, table.LookupOrFile(""))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "CTI_Everon", FileName("{59AD59FE94E4E411}Worlds/MP/CTI_Everon.ent"))
	assert.Equal(t, "plain", FileName("plain"))
}
