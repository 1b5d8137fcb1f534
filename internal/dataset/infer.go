package dataset

import (
	"math"
	"strconv"
	"time"

	"github.com/sakif/retail-analytics/internal/model"
)

// nullTokens are cell values loaded as SQL NULL.
var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NULL": true,
	"null": true,
	"NaN":  true,
	"nan":  true,
	"#N/A": true,
}

// DateLayouts are the accepted layouts for declared date columns, tried in
// order. The 84.51 sample files use 02-Jan-06 ("17-AUG-18").
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-Jan-06",
	"02-Jan-2006",
	"2-Jan-06",
	"01/02/2006",
	"1/2/2006",
}

// IsNull reports whether a sanitized cell is treated as SQL NULL.
func IsNull(cell string) bool {
	return nullTokens[cell]
}

// ParseDate parses v with the first matching layout in DateLayouts.
// Month names are matched case-insensitively. Results are in UTC.
func ParseDate(v string) (time.Time, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, normalizeMonth(v)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Infer types the columns of a sanitized frame and converts its cells.
//
// A column is integer when every non-null cell parses as int64, float when
// every non-null cell parses as float64, and text otherwise. Columns listed
// in dateColumns become timestamps when every non-null cell parses with
// ParseDate; if any cell does not, the column stays text and its name is
// returned in fallbacks. A column with no non-null cells is text.
func Infer(name string, f *Frame, dateColumns ...string) (table *model.Table, fallbacks []string) {
	if f == nil {
		f = &Frame{}
	}
	isDate := make(map[string]bool, len(dateColumns))
	for _, c := range dateColumns {
		isDate[c] = true
	}

	table = &model.Table{
		Name:    name,
		Columns: make([]model.Column, len(f.Columns)),
		Rows:    make([][]any, len(f.Rows)),
	}
	for i := range f.Rows {
		table.Rows[i] = make([]any, len(f.Columns))
	}

	for j, col := range f.Columns {
		typ := inferColumn(f, j, isDate[col])
		if isDate[col] && typ != model.TypeTimestamp {
			fallbacks = append(fallbacks, col)
			typ = model.TypeText
		}
		table.Columns[j] = model.Column{Name: col, Type: typ}

		for i, row := range f.Rows {
			table.Rows[i][j] = convert(row[j], typ)
		}
	}
	return table, fallbacks
}

func inferColumn(f *Frame, j int, date bool) model.ColumnType {
	allInt, allFloat, allDate := true, true, true
	seen := false
	for _, row := range f.Rows {
		cell := row[j]
		if IsNull(cell) {
			continue
		}
		seen = true
		if date {
			if _, ok := ParseDate(cell); !ok {
				allDate = false
			}
			continue
		}
		if allInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat && !allInt {
			if _, ok := parseFinite(cell); !ok {
				allFloat = false
			}
		}
		if !allInt && !allFloat {
			break
		}
	}

	switch {
	case !seen:
		return model.TypeText
	case date:
		if allDate {
			return model.TypeTimestamp
		}
		return model.TypeText
	case allInt:
		return model.TypeInteger
	case allFloat:
		return model.TypeFloat
	default:
		return model.TypeText
	}
}

func convert(cell string, typ model.ColumnType) any {
	if IsNull(cell) {
		return nil
	}
	switch typ {
	case model.TypeInteger:
		v, _ := strconv.ParseInt(cell, 10, 64)
		return v
	case model.TypeFloat:
		v, _ := parseFinite(cell)
		return v
	case model.TypeTimestamp:
		v, _ := ParseDate(cell)
		return v
	default:
		return cell
	}
}

// parseFinite parses a float cell. strconv also accepts "Inf", "Infinity"
// and "NaN" in any case; those are words, not numbers, and stay text.
func parseFinite(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// normalizeMonth rewrites an all-caps month abbreviation ("AUG") to the
// title case time.Parse expects ("Aug").
func normalizeMonth(v string) string {
	b := []byte(v)
	for i := 0; i+2 < len(b); i++ {
		if isUpper(b[i]) && isUpper(b[i+1]) && isUpper(b[i+2]) &&
			(i == 0 || !isLetter(b[i-1])) && (i+3 == len(b) || !isLetter(b[i+3])) {
			b[i+1] += 'a' - 'A'
			b[i+2] += 'a' - 'A'
		}
	}
	return string(b)
}

func isUpper(c byte) bool  { return c >= 'A' && c <= 'Z' }
func isLetter(c byte) bool { return isUpper(c) || (c >= 'a' && c <= 'z') }
