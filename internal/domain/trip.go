package domain

import (
	"errors"
	"fmt"
)

// TripsTable is the destination table for normalized trip records.
const TripsTable = "rides_raw"

// Canonical trip column names.
const (
	ColStartedAt        = "started_at"
	ColEndedAt          = "ended_at"
	ColStartStationID   = "start_station_id"
	ColStartStationName = "start_station_name"
	ColEndStationID     = "end_station_id"
	ColEndStationName   = "end_station_name"
	ColStartLat         = "start_lat"
	ColStartLng         = "start_lng"
	ColEndLat           = "end_lat"
	ColEndLng           = "end_lng"
	ColRideableType     = "rideable_type"
	ColMemberCasual     = "member_casual"
)

// CanonicalColumns is the storage layout of a trip record, in table order.
var CanonicalColumns = []string{
	ColStartedAt,
	ColEndedAt,
	ColStartStationID,
	ColStartStationName,
	ColEndStationID,
	ColEndStationName,
	ColStartLat,
	ColStartLng,
	ColEndLat,
	ColEndLng,
	ColRideableType,
	ColMemberCasual,
}

// legacyMarker is only present in the pre-2020 export format.
const legacyMarker = "Start date"

// legacyColumns maps the verbose pre-2020 headers to canonical names. Legacy
// files carry no coordinates or vehicle type.
var legacyColumns = map[string]string{
	"Start date":           ColStartedAt,
	"End date":             ColEndedAt,
	"Start station number": ColStartStationID,
	"Start station":        ColStartStationName,
	"End station number":   ColEndStationID,
	"End station":          ColEndStationName,
	"Member type":          ColMemberCasual,
}

// Shape identifies which of the known trip export layouts a file uses.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeLegacy
	ShapeCanonical
)

func (s Shape) String() string {
	switch s {
	case ShapeLegacy:
		return "legacy"
	case ShapeCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// ErrUnrecognizedShape is returned when a header matches neither known layout.
var ErrUnrecognizedShape = errors.New("unrecognized trip file shape")

// DetectShape classifies a header. The legacy marker wins over canonical
// columns if both appear.
func DetectShape(columns []string) (Shape, error) {
	var canonical bool
	for _, c := range columns {
		switch c {
		case legacyMarker:
			return ShapeLegacy, nil
		case ColStartedAt:
			canonical = true
		}
	}
	if canonical {
		return ShapeCanonical, nil
	}
	return ShapeUnknown, fmt.Errorf("%w: columns %q", ErrUnrecognizedShape, columns)
}

// canonicalName maps a source header to its canonical column under shape.
// Canonical and unknown shapes use identity naming.
func canonicalName(shape Shape, column string) string {
	if shape == ShapeLegacy {
		if name, ok := legacyColumns[column]; ok {
			return name
		}
		return ""
	}
	return column
}
