// Package util provides small string helpers shared by the command handlers.
package util

import "strings"

// TrimQuotes trims surrounding whitespace and one pair of enclosing double
// quotes.
func TrimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// JoinArgs rebuilds a free-text argument that the console split on spaces,
// e.g. a quoted mission name.
func JoinArgs(args []string) string {
	return FixEscapeQuotes(TrimQuotes(strings.Join(args, " ")))
}
