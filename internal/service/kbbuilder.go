package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
)

// KnowledgeBaseBuilder drives the external build workflow that provisions a
// course's knowledge base and data source.
type KnowledgeBaseBuilder struct {
	courses      CourseStore
	executor     external.WorkflowExecutor
	region       string
	bucket       string
	pollInterval time.Duration
	pollTimeout  time.Duration
	sleep        sleepFunc
}

// NewKnowledgeBaseBuilder creates a builder. pollInterval and pollTimeout
// bound the wait on the external workflow.
func NewKnowledgeBaseBuilder(courses CourseStore, executor external.WorkflowExecutor, region, bucket string, pollInterval, pollTimeout time.Duration) *KnowledgeBaseBuilder {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Minute
	}
	return &KnowledgeBaseBuilder{
		courses:      courses,
		executor:     executor,
		region:       region,
		bucket:       bucket,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		sleep:        contextSleep,
	}
}

// Build starts exactly one workflow execution for the course, persists its
// ARN immediately, and polls until the execution is terminal or the poll
// budget runs out. On success the {knowledge base, data source} pair is
// persisted in one update; on failure nothing is partially committed.
func (b *KnowledgeBaseBuilder) Build(ctx context.Context, course *domain.Course) error {
	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "kbbuilder")

	arn, err := b.executor.Start(ctx, external.WorkflowInput{
		CourseID:     course.ID,
		RegionName:   b.region,
		RegionBucket: b.bucket,
	})
	if err != nil {
		return NewStageError(domain.StageStateMachine, err)
	}
	if err := b.courses.SetExecutionARN(ctx, course.ID, arn); err != nil {
		return NewStageError(domain.StageStateMachine, err)
	}
	log.Info("Build workflow started")

	deadline := time.Now().Add(b.pollTimeout)
	attempt := 0
	for {
		if !time.Now().Before(deadline) {
			return NewStageError(domain.StageStateMachine,
				fmt.Errorf("workflow %s still running after %s (%d polls)", arn, b.pollTimeout, attempt))
		}
		if err := b.sleep(ctx, b.pollInterval); err != nil {
			return NewStageError(domain.StageStateMachine, err)
		}
		attempt++

		exec, err := b.executor.Describe(ctx, arn)
		if err != nil {
			return NewStageError(domain.StageStateMachine, err)
		}
		if !exec.Status.Terminal() {
			continue
		}

		if exec.Status != external.WorkflowStatusSucceeded {
			return NewStageError(domain.StageStateMachine,
				fmt.Errorf("workflow %s finished with status %s", arn, exec.Status))
		}
		if exec.Output == nil || exec.Output.KnowledgeBaseID == "" || exec.Output.DataSourceID == "" {
			return NewStageError(domain.StageStateMachine,
				fmt.Errorf("workflow %s succeeded without knowledge base identifiers", arn))
		}

		if err := b.courses.SetKnowledgeBase(ctx, course.ID, exec.Output.KnowledgeBaseID, exec.Output.DataSourceID); err != nil {
			return NewStageError(domain.StageStateMachine, err)
		}
		course.KnowledgeBaseID = exec.Output.KnowledgeBaseID
		course.DataSourceID = exec.Output.DataSourceID
		course.ExecutionARN = arn

		log.WithField(logger.FieldAttempt, attempt).Info("Knowledge base provisioned")
		return nil
	}
}
