// Package tabular holds the small in-memory and streaming table types shared by
// the normalizer, the weather fetcher, and the bulk loader.
//
// A value of nil is a SQL NULL. Everything else is written as-is by [WriteCSV],
// so callers decide the wire representation by choosing the Go type.
package tabular

import (
	"errors"
	"io"
)

// RowReader yields rows one at a time. Next returns io.EOF after the last row.
// Every row has exactly len(Columns()) values.
type RowReader interface {
	Columns() []string
	Next() ([]any, error)
}

// Table is a fully materialized dataset.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Column returns all values of the named column, or nil if the column is absent.
func (t Table) Column(name string) []any {
	idx := indexOf(t.Columns, name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// Reader returns a RowReader over the table's rows. Short rows are padded with nulls.
func (t Table) Reader() RowReader {
	return &tableReader{table: t}
}

type tableReader struct {
	table Table
	pos   int
}

func (r *tableReader) Columns() []string { return r.table.Columns }

func (r *tableReader) Next() ([]any, error) {
	if r.pos >= len(r.table.Rows) {
		return nil, io.EOF
	}
	row := r.table.Rows[r.pos]
	r.pos++
	return padRow(row, len(r.table.Columns)), nil
}

// ReadAll drains a RowReader into a Table.
func ReadAll(r RowReader) (Table, error) {
	t := Table{Columns: r.Columns()}
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return t, err
		}
		t.Rows = append(t.Rows, row)
	}
}

// Realign projects rows onto columns by name. Columns missing from the source
// yield nulls; source columns not listed are dropped. Values are not converted.
func Realign(src RowReader, columns []string) RowReader {
	srcCols := src.Columns()
	index := make([]int, len(columns))
	for i, col := range columns {
		index[i] = indexOf(srcCols, col)
	}
	return &realignedReader{src: src, columns: columns, index: index}
}

type realignedReader struct {
	src     RowReader
	columns []string
	index   []int
}

func (r *realignedReader) Columns() []string { return r.columns }

func (r *realignedReader) Next() ([]any, error) {
	row, err := r.src.Next()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(r.index))
	for i, idx := range r.index {
		if idx >= 0 && idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, nil
}

// indexOf returns the position of the first column named name, or -1.
func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func padRow(row []any, n int) []any {
	if len(row) == n {
		return row
	}
	out := make([]any, n)
	copy(out, row)
	return out
}
