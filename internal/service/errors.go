package service

import (
	"errors"
	"fmt"

	"github.com/dariov/coursekb/internal/domain"
)

// ErrAlreadyRunning is returned when a launch is rejected because a live run
// already holds the single-flight slot for the same resource.
var ErrAlreadyRunning = errors.New("task already running for this resource")

// ErrCourseNotFound is returned when an operation references a course that
// does not exist.
var ErrCourseNotFound = errors.New("course not found")

// StageError marks an error with the pipeline stage that raised it, so the
// orchestrator can name the failing stage in its terminal notification.
type StageError struct {
	Stage domain.PipelineStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage it occurred in. A nil err returns nil.
func NewStageError(stage domain.PipelineStage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage from an error chain, falling back to the
// given default when no stage is recorded.
func FailedStage(err error, fallback domain.PipelineStage) domain.PipelineStage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return fallback
}
