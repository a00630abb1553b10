package repository

import (
	"context"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunRepository handles pipeline run records and the single-flight task-run
// guard records.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a new pipeline run record.
func (r *RunRepository) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRun retrieves a pipeline run by ID.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// SetRunStage checkpoints the stage a run has reached.
func (r *RunRepository) SetRunStage(ctx context.Context, id string, stage domain.PipelineStage) error {
	return r.db.WithContext(ctx).Model(&domain.PipelineRun{}).
		Where("id = ?", id).
		Update("stage", stage).Error
}

// SetRunExecutionARN records the workflow execution a run is waiting on.
func (r *RunRepository) SetRunExecutionARN(ctx context.Context, id, arn string) error {
	return r.db.WithContext(ctx).Model(&domain.PipelineRun{}).
		Where("id = ?", id).
		Update("execution_arn", arn).Error
}

// SetRunIngestionJobID records the ingestion job a run is waiting on.
func (r *RunRepository) SetRunIngestionJobID(ctx context.Context, id, jobID string) error {
	return r.db.WithContext(ctx).Model(&domain.PipelineRun{}).
		Where("id = ?", id).
		Update("ingestion_job_id", jobID).Error
}

// FinishRun finalizes a run with a terminal status and optional error text.
func (r *RunRepository) FinishRun(ctx context.Context, id string, status domain.RunStatus, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.PipelineRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"error":       errMsg,
			"finished_at": &now,
		}).Error
}

// ListRunsByStatus retrieves pipeline runs in the given status.
func (r *RunRepository) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.PipelineRun, error) {
	var runs []domain.PipelineRun
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRunsByCourse retrieves the run history for a course, newest first.
func (r *RunRepository) ListRunsByCourse(ctx context.Context, courseID string) ([]domain.PipelineRun, error) {
	var runs []domain.PipelineRun
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("started_at DESC").
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ClaimTask acquires the single-flight guard for (kind, resourceID). The
// claim is an insert-if-absent against the unique (task_kind, resource_id)
// index; when a row already exists it is re-claimed only from a terminal
// status. Returns false when a live run holds the slot.
func (r *RunRepository) ClaimTask(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, bool, error) {
	task := &domain.TaskRun{
		ID:         uuid.New().String(),
		TaskKind:   kind,
		ResourceID: resourceID,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_kind"}, {Name: "resource_id"}},
		DoNothing: true,
	}).Create(task)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return task, true, nil
	}

	// Slot exists: re-claim it only if the previous run is terminal.
	upd := r.db.WithContext(ctx).Model(&domain.TaskRun{}).
		Where("task_kind = ? AND resource_id = ? AND status IN ?",
			kind, resourceID,
			[]domain.RunStatus{domain.RunStatusCompleted, domain.RunStatusFailed}).
		Updates(map[string]interface{}{
			"status":      domain.RunStatusRunning,
			"result":      "",
			"started_at":  time.Now(),
			"finished_at": nil,
		})
	if upd.Error != nil {
		return nil, false, upd.Error
	}
	if upd.RowsAffected == 0 {
		return nil, false, nil
	}

	var claimed domain.TaskRun
	if err := r.db.WithContext(ctx).
		First(&claimed, "task_kind = ? AND resource_id = ?", kind, resourceID).Error; err != nil {
		return nil, false, err
	}
	return &claimed, true, nil
}

// ReleaseTask finalizes a guard record with a terminal status.
func (r *RunRepository) ReleaseTask(ctx context.Context, id string, status domain.RunStatus, result string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.TaskRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"result":      result,
			"finished_at": &now,
		}).Error
}

// FindTask retrieves the guard record for (kind, resourceID).
func (r *RunRepository) FindTask(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, error) {
	var task domain.TaskRun
	if err := r.db.WithContext(ctx).
		First(&task, "task_kind = ? AND resource_id = ?", kind, resourceID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}
