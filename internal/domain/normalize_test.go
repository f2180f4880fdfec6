package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

const (
	testStationName = "Lincoln Memorial"
	testMember      = "member"
)

var legacyHeader = []string{
	"Duration", "Start date", "End date", "Start station number", "Start station",
	"End station number", "End station", "Bike number", "Member type",
}

func TestDetectShape(t *testing.T) {
	tests := []struct {
		name     string
		columns  []string
		expected Shape
		wantErr  bool
	}{
		{"legacy", legacyHeader, ShapeLegacy, false},
		{"canonical", CanonicalColumns, ShapeCanonical, false},
		{"canonical reordered", []string{"ride_id", "member_casual", "started_at"}, ShapeCanonical, false},
		{"legacy marker wins", []string{"started_at", "Start date"}, ShapeLegacy, false},
		{"unknown", []string{"trip_start", "trip_end"}, ShapeUnknown, true},
		{"empty", nil, ShapeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, err := DetectShape(tt.columns)
			assert.Equal(t, tt.expected, shape)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnrecognizedShape)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "legacy", ShapeLegacy.String())
	assert.Equal(t, "canonical", ShapeCanonical.String())
	assert.Equal(t, "unknown", ShapeUnknown.String())
}

func TestNormalize_Legacy(t *testing.T) {
	in := tabular.Table{
		Columns: legacyHeader,
		Rows: [][]any{
			{"1012", "2010-09-20 11:27:04", "2010-09-20 11:43:56", "31208", testStationName, "31108", "4th & M St SW", "W00742", "Member"},
		},
	}

	out, err := Normalizer{}.NormalizeTable(in)
	require.NoError(t, err)

	expected := tabular.Table{
		Columns: CanonicalColumns,
		Rows: [][]any{{
			time.Date(2010, 9, 20, 11, 27, 4, 0, time.UTC),
			time.Date(2010, 9, 20, 11, 43, 56, 0, time.UTC),
			int64(31208), testStationName,
			int64(31108), "4th & M St SW",
			nil, nil, nil, nil,
			nil, testMember,
		}},
	}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Fatalf("normalized legacy mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_CanonicalReordered(t *testing.T) {
	in := tabular.Table{
		Columns: []string{
			"member_casual", "ride_id", "end_lng", "end_lat", "start_lng", "start_lat",
			"end_station_name", "end_station_id", "start_station_name", "start_station_id",
			"ended_at", "started_at", "rideable_type",
		},
		Rows: [][]any{{
			"casual", "ABC123", "-77.05", "38.9", "-77.0364", "38.8951",
			"Union Station", "31623", testStationName, "31258",
			"2021-01-01 00:30:00", "2021-01-01 00:10:00", "Classic_Bike",
		}},
	}

	out, err := Normalizer{}.NormalizeTable(in)
	require.NoError(t, err)

	assert.Equal(t, CanonicalColumns, out.Columns)
	require.Len(t, out.Rows, 1)
	row := out.Rows[0]
	assert.Len(t, row, len(CanonicalColumns))
	assert.Equal(t, time.Date(2021, 1, 1, 0, 10, 0, 0, time.UTC), row[0])
	assert.Equal(t, int64(31258), row[2])
	assert.Equal(t, testStationName, row[3])
	assert.InDelta(t, 38.8951, row[6], 1e-9)
	assert.InDelta(t, -77.0364, row[7], 1e-9)
	assert.Equal(t, "classic_bike", row[10])
	assert.Equal(t, "casual", row[11])
}

func TestNormalize_TagCaseFolding(t *testing.T) {
	for _, raw := range []string{"Member", " member ", "member", "MEMBER\t"} {
		t.Run(raw, func(t *testing.T) {
			in := tabular.Table{
				Columns: []string{"started_at", "member_casual", "rideable_type"},
				Rows:    [][]any{{"2021-01-01 00:00:00", raw, raw}},
			}
			out, err := Normalizer{}.NormalizeTable(in)
			require.NoError(t, err)
			assert.Equal(t, testMember, out.Column(ColMemberCasual)[0])
			assert.Equal(t, testMember, out.Column(ColRideableType)[0])
		})
	}
}

func TestNormalize_MalformedValuesBecomeNull(t *testing.T) {
	var failed []string
	n := Normalizer{CoercionFailed: func(col string) { failed = append(failed, col) }}

	in := tabular.Table{
		Columns: CanonicalColumns,
		Rows: [][]any{
			{"not a date", "2021-13-45 99:99:99", "abc", "x", "31.5", "y", "north", "1e400", "38.9", "-77", "  ", nil},
		},
	}

	out, err := n.NormalizeTable(in)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1, "rows are never dropped")

	row := out.Rows[0]
	assert.Nil(t, row[0])
	assert.Nil(t, row[1])
	assert.Nil(t, row[2], "non-numeric station id")
	assert.Equal(t, "x", row[3])
	assert.Nil(t, row[4], "non-integral station id")
	assert.Nil(t, row[6], "non-numeric coordinate")
	assert.Nil(t, row[7], "overflowing coordinate")
	assert.InDelta(t, 38.9, row[8], 1e-9)
	assert.InDelta(t, -77.0, row[9], 1e-9)
	assert.Nil(t, row[10], "blank tag")
	assert.Nil(t, row[11])

	assert.ElementsMatch(t,
		[]string{ColStartedAt, ColEndedAt, ColStartStationID, ColEndStationID, ColStartLat, ColStartLng},
		failed)
}

func TestNormalize_UnrecognizedShape(t *testing.T) {
	in := tabular.Table{
		Columns: []string{"trip_start", "member_casual"},
		Rows:    [][]any{{"2021-01-01 00:00:00", "Member"}},
	}

	t.Run("strict", func(t *testing.T) {
		_, err := Normalizer{}.NormalizeTable(in)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnrecognizedShape))
	})

	t.Run("pass-through", func(t *testing.T) {
		out, err := Normalizer{AllowUnrecognized: true}.NormalizeTable(in)
		require.NoError(t, err)
		assert.Equal(t, CanonicalColumns, out.Columns)
		require.Len(t, out.Rows, 1)
		assert.Nil(t, out.Rows[0][0], "started_at is missing from the source")
		assert.Equal(t, testMember, out.Rows[0][11])
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected any
	}{
		{"iso", "2020-04-01 08:30:15", time.Date(2020, 4, 1, 8, 30, 15, 0, time.UTC)},
		{"fractional", "2020-04-01 08:30:15.123", time.Date(2020, 4, 1, 8, 30, 15, 123000000, time.UTC)},
		{"t separator", "2020-04-01T08:30:15", time.Date(2020, 4, 1, 8, 30, 15, 0, time.UTC)},
		{"minutes only", "2020-04-01 08:30", time.Date(2020, 4, 1, 8, 30, 0, 0, time.UTC)},
		{"us format", "9/20/2010 11:27", time.Date(2010, 9, 20, 11, 27, 0, 0, time.UTC)},
		{"date only", "2020-04-01", time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"padded", "  2020-04-01 08:30:15 ", time.Date(2020, 4, 1, 8, 30, 15, 0, time.UTC)},
		{"garbage", "yesterday", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTimestamp(tt.in)
			assert.Equal(t, tt.expected != nil, ok)
			if tt.expected != nil {
				assert.True(t, tt.expected.(time.Time).Equal(got.(time.Time)), "got %v", got)
			}
		})
	}
}

func TestParseStationID(t *testing.T) {
	tests := []struct {
		in       string
		expected any
	}{
		{"31208", int64(31208)},
		{" 31208 ", int64(31208)},
		{"31208.0", int64(31208)},
		{"31208.5", nil},
		{"2147483647", int64(2147483647)},
		{"-2147483648", int64(-2147483648)},
		{"2147483648", nil},
		{"4294967296", nil},
		{"4294967296.0", nil},
		{"-2147483649", nil},
		{"NaN", nil},
		{"station", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseStationID(tt.in)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.expected != nil, ok)
		})
	}
}

func TestParseCoordinate(t *testing.T) {
	got, ok := parseCoordinate("38.89512345")
	require.True(t, ok)
	assert.InDelta(t, 38.895123, got, 1e-12)

	got, ok = parseCoordinate("-77.0364")
	require.True(t, ok)
	assert.InDelta(t, -77.0364, got, 1e-12)

	_, ok = parseCoordinate("Inf")
	assert.False(t, ok)

	got, ok = parseCoordinate("-999.999999")
	require.True(t, ok)
	assert.InDelta(t, -999.999999, got, 1e-9)

	for _, tooWide := range []string{"1000", "-1000", "999.9999996", "38895120"} {
		_, ok = parseCoordinate(tooWide)
		assert.False(t, ok, tooWide)
	}
}

func TestNormalize_OutOfRangeValuesBecomeNull(t *testing.T) {
	var failed []string
	n := Normalizer{CoercionFailed: func(col string) { failed = append(failed, col) }}

	in := tabular.Table{
		Columns: []string{ColStartedAt, ColStartStationID, ColEndStationID, ColStartLat, ColEndLng},
		Rows:    [][]any{{"2021-01-01 00:00:00", "4294967296", "31208", "38895120", "-77.05"}},
	}

	out, err := n.NormalizeTable(in)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)

	assert.Nil(t, out.Column(ColStartStationID)[0])
	assert.Equal(t, int64(31208), out.Column(ColEndStationID)[0])
	assert.Nil(t, out.Column(ColStartLat)[0])
	assert.InDelta(t, -77.05, out.Column(ColEndLng)[0], 1e-9)
	assert.ElementsMatch(t, []string{ColStartStationID, ColStartLat}, failed)
}
