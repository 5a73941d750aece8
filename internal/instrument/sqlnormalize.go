package instrument

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	sqlStringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	sqlPlaceholder    = regexp.MustCompile(`\$\d+`)
	sqlNumericLiteral = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	sqlWhitespace     = regexp.MustCompile(`\s+`)
	sqlInList         = regexp.MustCompile(`(?i)\bIN \(\s*\?(?:\s*,\s*\?)*\s*\)`)
)

// NormalizeSQL strips literal values from a statement so equivalent queries share a fingerprint.
// String and numeric literals and $n placeholders become "?", whitespace collapses to one space,
// and IN lists collapse to "IN (?)".
func NormalizeSQL(query string) string {
	s := sqlStringLiteral.ReplaceAllString(query, "?")
	s = sqlPlaceholder.ReplaceAllString(s, "?")
	s = sqlNumericLiteral.ReplaceAllString(s, "?")
	s = strings.TrimSpace(sqlWhitespace.ReplaceAllString(s, " "))
	return sqlInList.ReplaceAllString(s, "IN (?)")
}

// Fingerprint returns the 16-hex-digit xxhash64 of a normalized statement.
func Fingerprint(normalized string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}
