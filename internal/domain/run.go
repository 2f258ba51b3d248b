package domain

import "time"

// RunStatus is the lifecycle state of one pipeline invocation.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunRecord tracks one invocation in etl_runs. Exactly one row per RunID;
// status only moves running → success or running → failed.
type RunRecord struct {
	RunID           string
	JobName         string
	RunAt           time.Time
	Status          RunStatus
	FinishedAt      *time.Time
	DurationSeconds *float64
	RowsLoaded      *int32
	ErrorText       *string
	LogPath         *string
}
