// Package maps turns host world file paths into readable map names.
package maps

import (
	"path"
	"strings"

	"github.com/opstrack/recorder/internal/config"
)

// Unknown is returned when a world cannot be named.
const Unknown = "Unknown"

// Defaults are the built-in world identifiers. Entries from the config file
// are consulted first.
var Defaults = []config.MapEntry{
	{WorldIdentifier: "Eden", MapName: "Everon"},
	{WorldIdentifier: "Everon", MapName: "Everon"},
	{WorldIdentifier: "Arland", MapName: "Arland"},
	{WorldIdentifier: "Kolguyev", MapName: "Kolguyev"},
}

// Table matches world files against identifiers.
type Table struct {
	entries []config.MapEntry
}

func NewTable(extra []config.MapEntry) *Table {
	entries := make([]config.MapEntry, 0, len(extra)+len(Defaults))
	entries = append(entries, extra...)
	entries = append(entries, Defaults...)
	return &Table{entries: entries}
}

// Lookup returns the name of the first entry whose identifier occurs in
// worldFile, ignoring case, or Unknown.
func (t *Table) Lookup(worldFile string) string {
	if worldFile == "" {
		return Unknown
	}
	lower := strings.ToLower(worldFile)
	for _, e := range t.entries {
		if e.WorldIdentifier == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(e.WorldIdentifier)) {
			return e.MapName
		}
	}
	return Unknown
}

// LookupOrFile is Lookup falling back to the world file's base name.
func (t *Table) LookupOrFile(worldFile string) string {
	if name := t.Lookup(worldFile); name != Unknown {
		return name
	}
	return FileName(worldFile)
}

// FileName extracts "CTI_Everon" from "{59AD59FE94E4E411}Worlds/MP/CTI_Everon.ent".
func FileName(worldFile string) string {
	if worldFile == "" {
		return Unknown
	}
	name := path.Base(strings.ReplaceAll(worldFile, `\`, "/"))
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[:dot]
	}
	if name == "" {
		return Unknown
	}
	return name
}
