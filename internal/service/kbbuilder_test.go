package service

import (
	"context"
	"testing"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
)

func newTestBuilder(courses *fakeCourseStore, executor *fakeExecutor) *KnowledgeBaseBuilder {
	b := NewKnowledgeBaseBuilder(courses, executor, "eu-central-1", "test-bucket", 15*time.Second, time.Hour)
	b.sleep = instantSleep
	return b
}

func TestBuildPersistsARNThenKnowledgeBasePair(t *testing.T) {
	course := &domain.Course{ID: "c1", TeacherID: "t1"}
	courses := newFakeCourseStore(course)
	executor := &fakeExecutor{
		statuses: []external.WorkflowStatus{
			external.WorkflowStatusRunning,
			external.WorkflowStatusRunning,
			external.WorkflowStatusSucceeded,
		},
		output: &external.WorkflowOutput{KnowledgeBaseID: "kb1", DataSourceID: "ds1"},
	}

	if err := newTestBuilder(courses, executor).Build(context.Background(), course); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := courses.get("c1")
	if stored.ExecutionARN == "" {
		t.Error("expected execution ARN persisted")
	}
	if stored.KnowledgeBaseID != "kb1" || stored.DataSourceID != "ds1" {
		t.Errorf("expected knowledge base pair persisted together, got kb=%q ds=%q",
			stored.KnowledgeBaseID, stored.DataSourceID)
	}
	if executor.starts != 1 {
		t.Errorf("expected exactly one execution start, got %d", executor.starts)
	}
}

func TestBuildFailureLeavesPairUnset(t *testing.T) {
	for _, status := range []external.WorkflowStatus{
		external.WorkflowStatusFailed,
		external.WorkflowStatusTimedOut,
		external.WorkflowStatusAborted,
	} {
		t.Run(string(status), func(t *testing.T) {
			course := &domain.Course{ID: "c1", TeacherID: "t1"}
			courses := newFakeCourseStore(course)
			executor := &fakeExecutor{statuses: []external.WorkflowStatus{status}}

			err := newTestBuilder(courses, executor).Build(context.Background(), course)
			if err == nil {
				t.Fatal("expected stage error")
			}
			if FailedStage(err, "") != domain.StageStateMachine {
				t.Errorf("expected state_machine stage, got %v", err)
			}

			stored := courses.get("c1")
			if stored.ExecutionARN == "" {
				t.Error("ARN should be persisted even when the workflow fails")
			}
			if stored.KnowledgeBaseID != "" || stored.DataSourceID != "" {
				t.Errorf("no partial commit expected, got kb=%q ds=%q",
					stored.KnowledgeBaseID, stored.DataSourceID)
			}
		})
	}
}

func TestBuildSucceededWithoutOutputFails(t *testing.T) {
	course := &domain.Course{ID: "c1", TeacherID: "t1"}
	courses := newFakeCourseStore(course)
	executor := &fakeExecutor{
		statuses: []external.WorkflowStatus{external.WorkflowStatusSucceeded},
		output:   &external.WorkflowOutput{KnowledgeBaseID: "kb1"}, // missing data source
	}

	err := newTestBuilder(courses, executor).Build(context.Background(), course)
	if err == nil {
		t.Fatal("expected error when the pair is incomplete")
	}
	stored := courses.get("c1")
	if stored.KnowledgeBaseID != "" || stored.DataSourceID != "" {
		t.Errorf("half a pair must never be persisted, got kb=%q ds=%q",
			stored.KnowledgeBaseID, stored.DataSourceID)
	}
}

func TestBuildPollBudgetExhausted(t *testing.T) {
	course := &domain.Course{ID: "c1", TeacherID: "t1"}
	courses := newFakeCourseStore(course)
	executor := &fakeExecutor{} // never terminal

	b := NewKnowledgeBaseBuilder(courses, executor, "eu-central-1", "test-bucket", time.Nanosecond, time.Millisecond)
	b.sleep = instantSleep

	err := b.Build(context.Background(), course)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if FailedStage(err, "") != domain.StageStateMachine {
		t.Errorf("expected state_machine stage, got %v", err)
	}
}
