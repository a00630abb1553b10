package domain

import "time"

// PipelineVariant identifies which flavor of the course pipeline a run executes.
type PipelineVariant string

const (
	VariantCreate          PipelineVariant = "create"
	VariantUpdate          PipelineVariant = "update"
	VariantDeleteAndUpdate PipelineVariant = "delete_and_update"
)

// PipelineStage names the checkpoints a run passes through. Persisted on the
// run record so an interrupted pipeline is inspectable after a restart.
type PipelineStage string

const (
	StageStarting     PipelineStage = "starting"
	StageMaterials    PipelineStage = "materials"
	StageStateMachine PipelineStage = "state_machine"
	StageTranscribe   PipelineStage = "transcribe"
	StageIngestion    PipelineStage = "ingestion"
	StageEnrichment   PipelineStage = "enrichment"
	StageCompleted    PipelineStage = "completed"
)

// RunStatus is the lifecycle status shared by pipeline runs and task runs.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun records one background pipeline execution over a course:
// variant, last reached stage, and the external job ids it holds. A run left
// in "running" after a process restart is finalized as failed on startup.
type PipelineRun struct {
	ID             string          `gorm:"type:text;primaryKey" json:"id"`
	CourseID       string          `gorm:"type:text;not null;index:idx_pipeline_runs_course" json:"course_id"`
	Variant        PipelineVariant `gorm:"type:text;not null" json:"variant"`
	Stage          PipelineStage   `gorm:"type:text" json:"stage"`
	Status         RunStatus       `gorm:"type:text;index:idx_pipeline_runs_status;default:pending" json:"status"`
	ExecutionARN   string          `gorm:"type:text" json:"execution_arn,omitempty"`
	IngestionJobID string          `gorm:"type:text" json:"ingestion_job_id,omitempty"`
	Error          string          `gorm:"type:text" json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// TableName returns the database table name for PipelineRun.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
