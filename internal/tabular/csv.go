package tabular

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is how time.Time values are written; PostgreSQL parses it
// into TIMESTAMP and DATE columns alike.
const TimestampLayout = "2006-01-02 15:04:05.999999"

const utf8BOM = "\ufeff"

// CSVReader reads a header-first CSV stream. Every value is a string; empty
// fields are nulls.
type CSVReader struct {
	r       *csv.Reader
	columns []string
}

// NewCSVReader consumes the header row. An empty stream is an error.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read csv header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return &CSVReader{r: cr, columns: header}, nil
}

// Columns returns the header.
func (c *CSVReader) Columns() []string { return c.columns }

// Next returns the next record. Records shorter than the header are padded with
// nulls and longer ones are truncated.
func (c *CSVReader) Next() ([]any, error) {
	rec, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read csv record: %w", err)
	}
	row := make([]any, len(c.columns))
	for i := range row {
		if i < len(rec) && rec[i] != "" {
			row[i] = rec[i]
		}
	}
	return row, nil
}

// WriteCSV writes a header row followed by every row of r, returning the number
// of data rows written. Nulls become empty unquoted fields, which COPY ... CSV
// reads back as NULL.
func WriteCSV(w io.Writer, r RowReader) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns()); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	var n int64
	record := make([]string, len(r.Columns()))
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return n, fmt.Errorf("write csv record: %w", err)
		}
		n++
	}

	cw.Flush()
	return n, cw.Error()
}

// FormatValue renders a single value for CSV output.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case time.Time:
		return val.Format(TimestampLayout)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
