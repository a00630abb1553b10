package domain

import "time"

// TaskKind identifies a long-running background task guarded against
// concurrent execution over the same resource.
type TaskKind string

const (
	TaskKindCoursePipeline TaskKind = "course_pipeline"
	TaskKindTopicsAnalysis TaskKind = "topics_analysis"
)

// TaskRun is the single-flight guard record: one row per (task kind,
// resource), reused across launches. A row in pending/running status rejects
// any new launch for the same key; the unique index makes the claim an
// insert-if-absent rather than a read-then-write.
type TaskRun struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	TaskKind   TaskKind   `gorm:"type:text;not null;uniqueIndex:idx_task_runs_key" json:"task_kind"`
	ResourceID string     `gorm:"type:text;not null;uniqueIndex:idx_task_runs_key" json:"resource_id"`
	Status     RunStatus  `gorm:"type:text;default:pending" json:"status"`
	Result     string     `gorm:"type:text" json:"result,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName returns the database table name for TaskRun.
func (TaskRun) TableName() string {
	return "task_runs"
}
