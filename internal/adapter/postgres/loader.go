package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

// Load realigns rows to columns and bulk copies them into table. Rows are
// serialized to CSV on the fly, so memory use does not grow with the input.
// It returns the number of rows the server reports as copied.
func (d *DB) Load(ctx context.Context, table string, columns []string, rows tabular.RowReader) (int64, error) {
	stmt := copyStatement(table, columns)
	src := tabular.Realign(rows, columns)
	start := time.Now()

	pr, pw := io.Pipe()
	writeErr := make(chan error, 1)
	go func() {
		_, err := tabular.WriteCSV(pw, src)
		pw.CloseWithError(err)
		writeErr <- err
	}()

	n, copyErr := d.copier.CopyFrom(ctx, pr, stmt)
	// Unblocks the writer if the copy stopped reading early.
	pr.Close()
	werr := <-writeErr

	if werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		return n, fmt.Errorf("serialize %s: %w", table, werr)
	}
	if copyErr != nil {
		return n, fmt.Errorf("copy into %s: %w", table, copyErr)
	}

	d.metrics.RowsLoaded.WithLabelValues(table).Add(float64(n))
	d.logger.Info("table loaded", "table", table, "rows", n, "elapsed", time.Since(start))
	return n, nil
}

func copyStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT CSV, HEADER TRUE)",
		quoteIdent(table), strings.Join(quoted, ", "))
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}
