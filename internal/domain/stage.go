package domain

import "time"

// Stage is a pipeline state. Stages are reached strictly in declaration order.
type Stage int

const (
	StagePending Stage = iota
	StageProvisioned
	StageSchemaReady
	StageTripsLoaded
	StageWeatherLoaded
	StageAccessGranted
)

var stageNames = map[Stage]string{
	StagePending:       "pending",
	StageProvisioned:   "provisioned",
	StageSchemaReady:   "schema_ready",
	StageTripsLoaded:   "trips_loaded",
	StageWeatherLoaded: "weather_loaded",
	StageAccessGranted: "access_granted",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Stage outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// StageEvent records one transition attempt.
type StageEvent struct {
	RunID    string        `json:"run_id"`
	Stage    string        `json:"stage"`
	Outcome  string        `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// Endpoint locates the target database.
type Endpoint struct {
	Host     string
	Port     int
	Database string
}

// ReadOnlyRole describes the analytics principal granted SELECT-only access.
type ReadOnlyRole struct {
	Name            string
	Password        string
	Database        string
	ConnectionLimit int
}

// RunStatus is a point-in-time view of a pipeline run.
type RunStatus struct {
	RunID   string       `json:"run_id"`
	Stage   string       `json:"stage"`
	Running bool         `json:"running"`
	Error   string       `json:"error,omitempty"`
	History []StageEvent `json:"history"`
}
