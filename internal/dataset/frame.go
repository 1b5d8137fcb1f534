// Package dataset turns raw CSV bytes into typed tables.
//
// The pipeline for one file is:
//
//	ReadCSV  → *Frame      (header + string cells, exactly as in the file)
//	Sanitize → *Frame      (store-safe column names, trimmed cells)
//	Infer    → *model.Table (typed columns, NULLs, parsed dates)
//
// Nothing in this package touches the network or the database.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Frame is an untyped tabular dataset: a header row plus string cells.
// Every row has exactly len(Columns) cells.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// ReadCSV parses a CSV stream whose first record is the header.
//
// Ragged rows are tolerated: short rows are padded with empty cells and
// cells beyond the header are dropped. A UTF-8 byte order mark in front of
// the first header is removed.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset: empty csv: no header row")
		}
		return nil, fmt.Errorf("dataset: reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	f := &Frame{Columns: header}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("dataset: reading record %d: %w", line, err)
		}
		row := make([]string, len(header))
		copy(row, record)
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Head returns a frame holding at most the first n rows. n <= 0 means all
// rows. The returned frame shares cells with f.
func (f *Frame) Head(n int) *Frame {
	if n <= 0 || n >= len(f.Rows) {
		return f
	}
	return &Frame{Columns: f.Columns, Rows: f.Rows[:n]}
}

// Rename changes column old to new. It is a no-op when old is absent or
// when a column named new already exists. Reports whether a rename happened.
func (f *Frame) Rename(old, new string) bool {
	idx := -1
	for i, c := range f.Columns {
		if c == new {
			return false
		}
		if c == old {
			idx = i
		}
	}
	if idx < 0 {
		return false
	}
	f.Columns[idx] = new
	return true
}
