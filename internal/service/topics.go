package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
)

// TopicsAnalyzer launches the per-group topic analysis task. It shares the
// single-flight guard with the course pipeline under its own task kind, so
// one group is analyzed at most once at a time.
type TopicsAnalyzer struct {
	courses   CourseStore
	guard     *Guard
	inference external.InferenceService

	wg sync.WaitGroup
}

// NewTopicsAnalyzer creates a topics analyzer.
func NewTopicsAnalyzer(courses CourseStore, guard *Guard, inference external.InferenceService) *TopicsAnalyzer {
	return &TopicsAnalyzer{courses: courses, guard: guard, inference: inference}
}

// Wait blocks until in-flight analyses have finished.
func (t *TopicsAnalyzer) Wait() {
	t.wg.Wait()
}

// Launch accepts one analysis run for a group and detaches it. A live run
// for the same group rejects the launch with ErrAlreadyRunning.
func (t *TopicsAnalyzer) Launch(ctx context.Context, groupID string) error {
	courses, err := t.courses.ListByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		return fmt.Errorf("group %s has no courses to analyze", groupID)
	}

	task, err := t.guard.Begin(ctx, domain.TaskKindTopicsAnalysis, groupID)
	if err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	bg = logger.WithField(bg, logger.FieldComponent, "topics")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.analyze(bg, task, groupID, courses)
	}()
	return nil
}

// analyze summarizes the knowledge bases of every course in the group and
// stores the aggregate on the guard record.
func (t *TopicsAnalyzer) analyze(ctx context.Context, task *domain.TaskRun, groupID string, courses []domain.Course) {
	log := logger.FromContext(ctx)

	var sections []string
	var errs []error
	for i := range courses {
		course := &courses[i]
		if !course.HasKnowledgeBase() {
			continue
		}
		summary, err := t.inference.GenerateSummary(ctx, course.KnowledgeBaseID)
		if err != nil {
			errs = append(errs, fmt.Errorf("course %s: %w", course.ID, err))
			continue
		}
		sections = append(sections, fmt.Sprintf("%s: %s", course.Title, summary))
	}

	if len(sections) == 0 {
		cause := fmt.Errorf("no course in group %s produced a topic summary", groupID)
		if len(errs) > 0 {
			cause = joinErrors(errs)
		}
		log.WithError(cause).Error("Topic analysis failed")
		if err := t.guard.Finish(ctx, task, domain.RunStatusFailed, cause.Error()); err != nil {
			log.WithError(err).Error("Failed to release topic analysis slot")
		}
		return
	}

	result := strings.Join(sections, "\n\n")
	log.WithField(logger.FieldCount, len(sections)).Info("Topic analysis completed")
	if err := t.guard.Finish(ctx, task, domain.RunStatusCompleted, result); err != nil {
		log.WithError(err).Error("Failed to release topic analysis slot")
	}
}

// Result returns the last finished analysis for a group, or "" when none
// has completed yet.
func (t *TopicsAnalyzer) Result(ctx context.Context, groupID string) (string, domain.RunStatus, error) {
	task, err := t.guard.Find(ctx, domain.TaskKindTopicsAnalysis, groupID)
	if err != nil {
		return "", "", err
	}
	return task.Result, task.Status, nil
}
