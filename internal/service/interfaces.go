package service

import (
	"context"

	"github.com/dariov/coursekb/internal/domain"
)

// CourseStore is the course persistence surface the services depend on.
// Implemented by repository.CourseRepository.
type CourseStore interface {
	Create(ctx context.Context, course *domain.Course) error
	Get(ctx context.Context, id string) (*domain.Course, error)
	ListByGroup(ctx context.Context, groupID string) ([]domain.Course, error)
	TransitionIngestionStatus(ctx context.Context, id string, from []domain.IngestionStatus, to domain.IngestionStatus) (bool, error)
	SetIngestionStatus(ctx context.Context, id string, status domain.IngestionStatus) error
	SetExecutionARN(ctx context.Context, id, arn string) error
	SetKnowledgeBase(ctx context.Context, id, knowledgeBaseID, dataSourceID string) error
	SetIngestionJobID(ctx context.Context, id, jobID string) error
	SetDescription(ctx context.Context, id, description string) error
	SetSampleQuestions(ctx context.Context, id string, questions []string) error
}

// MaterialStore is the material persistence surface the services depend on.
// Implemented by repository.MaterialRepository.
type MaterialStore interface {
	Create(ctx context.Context, material *domain.Material) error
	Get(ctx context.Context, id string) (*domain.Material, error)
	GetByStorageURI(ctx context.Context, uri string) (*domain.Material, error)
	ListByCourse(ctx context.Context, courseID string) ([]domain.Material, error)
	SetTranscriptionURI(ctx context.Context, id, uri string) error
	SetStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
}

// RunStore persists pipeline run checkpoints.
// Implemented by repository.RunRepository.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.PipelineRun) error
	SetRunStage(ctx context.Context, id string, stage domain.PipelineStage) error
	SetRunExecutionARN(ctx context.Context, id, arn string) error
	SetRunIngestionJobID(ctx context.Context, id, jobID string) error
	FinishRun(ctx context.Context, id string, status domain.RunStatus, errMsg string) error
	ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.PipelineRun, error)
}

// GuardStore persists single-flight guard records.
// Implemented by repository.RunRepository.
type GuardStore interface {
	ClaimTask(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, bool, error)
	ReleaseTask(ctx context.Context, id string, status domain.RunStatus, result string) error
	FindTask(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, error)
}
