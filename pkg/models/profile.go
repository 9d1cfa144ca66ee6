package models

import "time"

// Process types recorded in profiles.
const (
	ProcessTypeStage = "stage"
	ProcessTypeTask  = "task"
)

// Profile is the runtime profile of one stage or task execution.
type Profile struct {
	ID               string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RunID            string    `json:"run_id" gorm:"index;type:varchar(36)"`
	ProcessType      string    `json:"process_type" gorm:"type:varchar(16);not null"`
	ProcessName      string    `json:"process_name" gorm:"index;type:varchar(255);not null"`
	Stage            string    `json:"stage" gorm:"index;type:varchar(255)"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	RuntimeSeconds   float64   `json:"runtime_seconds"`
	RowsIn           int       `json:"rows_in"`
	RowsOut          int       `json:"rows_out"`
	CPUCores         int       `json:"cpu_cores"`
	MemoryPeakMB     float64   `json:"memory_usage_peak_mb"`
	MemoryAllocs     uint64    `json:"memory_allocations"`
	ExceptionsRaised int       `json:"exceptions_raised"`
	Status           string    `json:"status" gorm:"type:varchar(16)"`
}

// TableName pins the table name.
func (Profile) TableName() string {
	return "profile"
}
