package dataset

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxColumnNameLength is the longest identifier every supported store
// accepts (SQL Server's limit).
const MaxColumnNameLength = 128

// Sanitize returns a copy of f with store-safe column names and trimmed
// string cells. Row count and column order are preserved.
//
// Sanitize never fails: a nil frame yields an empty frame.
func Sanitize(f *Frame) *Frame {
	if f == nil {
		return &Frame{}
	}

	out := &Frame{
		Columns: sanitizeColumns(f.Columns),
		Rows:    make([][]string, len(f.Rows)),
	}
	for i, row := range f.Rows {
		cleaned := make([]string, len(row))
		for j, cell := range row {
			cleaned[j] = strings.TrimSpace(cell)
		}
		out.Rows[i] = cleaned
	}
	return out
}

// SanitizeColumnName trims name, replaces every internal whitespace rune
// with an underscore and truncates the result to MaxColumnNameLength runes.
// The result may be empty; Sanitize handles that case.
func SanitizeColumnName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
	return truncateRunes(name, MaxColumnNameLength)
}

// sanitizeColumns applies SanitizeColumnName and then makes the labels
// non-empty and unique. Empty labels become column_<position>; repeats get
// _2, _3... suffixes, shortening the base so the limit still holds.
func sanitizeColumns(columns []string) []string {
	out := make([]string, len(columns))
	seen := make(map[string]bool, len(columns))

	for i, c := range columns {
		name := SanitizeColumnName(c)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := 2; seen[strings.ToLower(name)]; n++ {
			suffix := "_" + strconv.Itoa(n)
			name = truncateRunes(base, MaxColumnNameLength-len(suffix)) + suffix
		}
		seen[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
