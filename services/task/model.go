package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

var (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobSkipped JobStatus = "skipped"
	JobFailed  JobStatus = "failed"
)

// Job is an execution record of a background task run.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	TaskName    string         `gorm:"column:task_name;type:varchar(100);index;not null"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);not null"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

func (Job) TableName() string { return "jobs" }

type SettlementPayload struct {
	JobID      string `json:"job_id"`
	PeriodDays int    `json:"period_days"`
}

type ReconcilePayload struct {
	JobID string `json:"job_id"`
}

func Models() []any {
	return []any{&Job{}}
}
