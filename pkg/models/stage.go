package models

import "time"

// StageStatus is the lifecycle state of a stage run.
type StageStatus string

const (
	StageNotStarted StageStatus = "NOT_STARTED"
	StageRunning    StageStatus = "RUNNING"
	StageComplete   StageStatus = "COMPLETE"
	StageSkipped    StageStatus = "SKIPPED"
	StageFailed     StageStatus = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s StageStatus) IsTerminal() bool {
	return s == StageComplete || s == StageSkipped || s == StageFailed
}

// RunRecord captures one stage run.
type RunRecord struct {
	RunID         string        `json:"run_id"`
	Stage         string        `json:"stage"`
	SourceID      string        `json:"source_id"`
	DestinationID string        `json:"destination_id"`
	Tasks         []string      `json:"tasks"`
	Force         bool          `json:"force"`
	Status        StageStatus   `json:"status"`
	TasksExecuted int           `json:"tasks_executed"`
	RowsIn        int           `json:"rows_in"`
	RowsOut       int           `json:"rows_out"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}
