package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dariov/coursekb/internal/domain"
)

func newTestAnalyzer(courses *fakeCourseStore, runs *fakeRunStore, inference *fakeInference) *TopicsAnalyzer {
	return NewTopicsAnalyzer(courses, NewGuard(runs), inference)
}

func TestTopicsAnalysisAggregatesGroupSummaries(t *testing.T) {
	courses := newFakeCourseStore(
		&domain.Course{ID: "c1", Title: "Algebra", GroupID: "g1",
			KnowledgeBaseID: "kb1", DataSourceID: "ds1"},
		&domain.Course{ID: "c2", Title: "Geometry", GroupID: "g1",
			KnowledgeBaseID: "kb2", DataSourceID: "ds2"},
		&domain.Course{ID: "c3", Title: "Drafts", GroupID: "g1"}, // no knowledge base yet
	)
	runs := newFakeRunStore()
	analyzer := newTestAnalyzer(courses, runs, &fakeInference{})

	if err := analyzer.Launch(context.Background(), "g1"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	analyzer.Wait()

	result, status, err := analyzer.Result(context.Background(), "g1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if status != domain.RunStatusCompleted {
		t.Errorf("expected completed, got %s", status)
	}
	for _, title := range []string{"Algebra:", "Geometry:"} {
		if !strings.Contains(result, title) {
			t.Errorf("result should contain a %q section:\n%s", title, result)
		}
	}
	if strings.Contains(result, "Drafts") {
		t.Error("courses without a knowledge base must be skipped")
	}
}

func TestTopicsAnalysisSingleFlightPerGroup(t *testing.T) {
	courses := newFakeCourseStore(
		&domain.Course{ID: "c1", Title: "Algebra", GroupID: "g1",
			KnowledgeBaseID: "kb1", DataSourceID: "ds1"})
	runs := newFakeRunStore()
	analyzer := newTestAnalyzer(courses, runs, &fakeInference{})

	// Occupy the slot as a live analysis would.
	if _, _, err := runs.ClaimTask(context.Background(), domain.TaskKindTopicsAnalysis, "g1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	err := analyzer.Launch(context.Background(), "g1")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if runs.taskCount() != 1 {
		t.Errorf("rejection must not create a second record, got %d", runs.taskCount())
	}
}

func TestTopicsAnalysisEmptyGroupRejected(t *testing.T) {
	analyzer := newTestAnalyzer(newFakeCourseStore(), newFakeRunStore(), &fakeInference{})
	if err := analyzer.Launch(context.Background(), "g-empty"); err == nil {
		t.Fatal("expected rejection for a group without courses")
	}
}

func TestTopicsAnalysisFailureRecorded(t *testing.T) {
	courses := newFakeCourseStore(
		&domain.Course{ID: "c1", Title: "Algebra", GroupID: "g1",
			KnowledgeBaseID: "kb1", DataSourceID: "ds1"})
	runs := newFakeRunStore()
	analyzer := newTestAnalyzer(courses, runs, &fakeInference{summaryErrs: 100})

	if err := analyzer.Launch(context.Background(), "g1"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	analyzer.Wait()

	result, status, err := analyzer.Result(context.Background(), "g1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if status != domain.RunStatusFailed {
		t.Errorf("expected failed, got %s", status)
	}
	if !strings.Contains(result, "c1") {
		t.Errorf("failure record should name the failing course, got %q", result)
	}

	// A failed analysis frees the slot for a retry.
	if err := analyzer.Launch(context.Background(), "g1"); err != nil {
		t.Errorf("expected relaunch after failure: %v", err)
	}
	analyzer.Wait()
}
