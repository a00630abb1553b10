package service

import (
	"context"
	"sync"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
)

// EnrichmentStage fills in a course's generated description and sample
// questions. It is gap-filling, not an overwrite: fields that already hold a
// value are left alone, and re-running it with both fields populated makes
// no inference calls at all.
type EnrichmentStage struct {
	courses   CourseStore
	inference external.InferenceService
	retry     *retrier
}

// NewEnrichmentStage creates an enrichment stage; each sub-task retries
// up to attempts times with a fixed delay.
func NewEnrichmentStage(courses CourseStore, inference external.InferenceService, attempts int, delay time.Duration) *EnrichmentStage {
	if attempts < 1 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 30 * time.Second
	}
	return &EnrichmentStage{
		courses:   courses,
		inference: inference,
		retry:     newRetrier(attempts, delay),
	}
}

// Run generates whatever is missing. The two sub-tasks run concurrently;
// one failing never blocks the other, and the aggregate error is returned
// only after both have finished.
func (e *EnrichmentStage) Run(ctx context.Context, course *domain.Course) error {
	type task struct {
		name string
		fn   func(ctx context.Context) error
	}

	var tasks []task
	if course.Description == "" {
		tasks = append(tasks, task{name: "description generation", fn: func(ctx context.Context) error {
			return e.fillDescription(ctx, course)
		}})
	}
	if len(course.SampleQuestions) == 0 {
		tasks = append(tasks, task{name: "sample question generation", fn: func(ctx context.Context) error {
			return e.fillSampleQuestions(ctx, course)
		}})
	}
	if len(tasks) == 0 {
		return nil
	}

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			if err := e.retry.Do(ctx, t.name, t.fn); err != nil {
				errs[i] = err
			}
		}(i, t)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return NewStageError(domain.StageEnrichment, joinErrors(failed))
	}
	return nil
}

func (e *EnrichmentStage) fillDescription(ctx context.Context, course *domain.Course) error {
	summary, err := e.inference.GenerateSummary(ctx, course.KnowledgeBaseID)
	if err != nil {
		return err
	}
	if err := e.courses.SetDescription(ctx, course.ID, summary); err != nil {
		return err
	}
	course.Description = summary
	logger.FromContext(ctx).Info("Course description generated")
	return nil
}

func (e *EnrichmentStage) fillSampleQuestions(ctx context.Context, course *domain.Course) error {
	questions, err := e.inference.GenerateSampleQuestions(ctx, course.KnowledgeBaseID)
	if err != nil {
		return err
	}
	if err := e.courses.SetSampleQuestions(ctx, course.ID, questions); err != nil {
		return err
	}
	course.SampleQuestions = questions
	logger.FromContext(ctx).WithField(logger.FieldCount, len(questions)).Info("Sample questions generated")
	return nil
}
