package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

// timestampLayouts are tried in order. Go accepts fractional seconds after a
// seconds field even when the layout omits them.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
	"1/2/2006",
}

// coordinateScale rounds coordinates to 6 decimal places, matching NUMERIC(9,6).
const coordinateScale = 1e6

// maxCoordinate is the exclusive bound of a NUMERIC(9,6) column.
const maxCoordinate = 1000

// Normalizer converts trip rows of either known shape into canonical rows.
type Normalizer struct {
	// AllowUnrecognized treats a header of unknown shape as canonical instead
	// of failing. Canonical columns it lacks come out null.
	AllowUnrecognized bool

	// CoercionFailed, if set, is called once per non-empty value that could not
	// be parsed and was nulled.
	CoercionFailed func(column string)
}

// Normalize wraps src so that every row it yields has exactly CanonicalColumns,
// coerced to their storage types. Rows are never dropped.
func (n Normalizer) Normalize(src tabular.RowReader) (tabular.RowReader, error) {
	shape, err := DetectShape(src.Columns())
	if err != nil {
		if !n.AllowUnrecognized {
			return nil, err
		}
		shape = ShapeUnknown
	}

	index := make([]int, len(CanonicalColumns))
	for i := range index {
		index[i] = -1
	}
	for srcIdx, col := range src.Columns() {
		name := canonicalName(shape, col)
		for i, canonical := range CanonicalColumns {
			if name == canonical && index[i] < 0 {
				index[i] = srcIdx
			}
		}
	}

	return &normalizedReader{src: src, index: index, shape: shape, onFail: n.CoercionFailed}, nil
}

// NormalizeTable is Normalize over a materialized table.
func (n Normalizer) NormalizeTable(t tabular.Table) (tabular.Table, error) {
	r, err := n.Normalize(t.Reader())
	if err != nil {
		return tabular.Table{}, err
	}
	return tabular.ReadAll(r)
}

type normalizedReader struct {
	src    tabular.RowReader
	index  []int
	shape  Shape
	onFail func(string)
}

func (r *normalizedReader) Columns() []string { return CanonicalColumns }

// Shape reports the layout detected for the source.
func (r *normalizedReader) Shape() Shape { return r.shape }

func (r *normalizedReader) Next() ([]any, error) {
	row, err := r.src.Next()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(CanonicalColumns))
	for i, col := range CanonicalColumns {
		idx := r.index[i]
		if idx < 0 || idx >= len(row) {
			continue
		}
		raw, ok := rawString(row[idx])
		if !ok {
			continue
		}
		v, ok := coerce(col, raw)
		if !ok {
			if r.onFail != nil {
				r.onFail(col)
			}
			continue
		}
		out[i] = v
	}
	return out, nil
}

// coerce converts a non-empty raw value for the given canonical column.
// It reports false when the value cannot be represented and must be nulled.
func coerce(column, raw string) (any, bool) {
	switch column {
	case ColStartedAt, ColEndedAt:
		return parseTimestamp(raw)
	case ColStartStationID, ColEndStationID:
		return parseStationID(raw)
	case ColStartLat, ColStartLng, ColEndLat, ColEndLng:
		return parseCoordinate(raw)
	case ColRideableType, ColMemberCasual:
		return normalizeTag(raw)
	default:
		return raw, true
	}
}

func rawString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	default:
		return fmt.Sprint(val), true
	}
}

// parseTimestamp tries each known layout and keeps the wall-clock time.
func parseTimestamp(s string) (any, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return nil, false
}

// parseStationID accepts integers and integral floats such as "31208.0" that
// fit the INTEGER column.
func parseStationID(s string) (any, bool) {
	s = strings.TrimSpace(s)
	var v int64
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		v = i
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return nil, false
		}
		if f > math.MaxInt32 || f < math.MinInt32 {
			return nil, false
		}
		v = int64(f)
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return nil, false
	}
	return v, true
}

// parseCoordinate parses a float and rounds half-to-even at 6 decimals.
// Values that would overflow NUMERIC(9,6) are rejected.
func parseCoordinate(s string) (any, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	v := math.RoundToEven(f*coordinateScale) / coordinateScale
	if math.Abs(v) >= maxCoordinate {
		return nil, false
	}
	return v, true
}

// normalizeTag trims and lowercases categorical text so "Member" and " member "
// collapse to "member". Blank tags become null.
func normalizeTag(s string) (any, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, true
	}
	return s, true
}
