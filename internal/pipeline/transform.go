package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/observability"
	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

// TripTransformer opens extracted trip CSVs as canonical rows.
type TripTransformer struct {
	normalizer domain.Normalizer
	logger     *slog.Logger
}

// NewTripTransformer creates a TripTransformer. With allowUnknownShape, files
// whose header matches neither trip layout are read as canonical instead of
// failing.
func NewTripTransformer(allowUnknownShape bool, metrics *observability.Metrics, logger *slog.Logger) *TripTransformer {
	return &TripTransformer{
		normalizer: domain.Normalizer{
			AllowUnrecognized: allowUnknownShape,
			CoercionFailed: func(column string) {
				metrics.CoercionNulls.WithLabelValues(column).Inc()
			},
		},
		logger: logger,
	}
}

// Transform opens path and returns its rows in canonical trip shape. The
// caller closes the returned file once the rows are consumed.
func (t *TripTransformer) Transform(path string) (tabular.RowReader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}

	src, err := tabular.NewCSVReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	rows, err := t.normalizer.Normalize(src)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if s, ok := rows.(interface{ Shape() domain.Shape }); ok {
		t.logger.Info("trip file opened", "file", filepath.Base(path), "shape", s.Shape().String())
	}
	return rows, f, nil
}

// tripFiles lists the .csv files directly under dir in lexical order.
func tripFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
