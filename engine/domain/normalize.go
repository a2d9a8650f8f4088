package domain

import "strings"

var titleReplacer = strings.NewReplacer(":", " ", "\r", " ", "\n", " ", "\t", " ")

// NormalizeTitle lower-cases a unit or chapter title, drops colons and line
// breaks and collapses runs of whitespace. Stored payloads and lookups both go
// through it so structural filters never depend on casing.
func NormalizeTitle(s string) string {
	s = titleReplacer.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}
