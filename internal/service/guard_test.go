package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dariov/coursekb/internal/domain"
)

func TestGuardRejectsSecondLaunch(t *testing.T) {
	store := newFakeRunStore()
	guard := NewGuard(store)
	ctx := context.Background()

	task, err := guard.Begin(ctx, domain.TaskKindCoursePipeline, "c1")
	if err != nil {
		t.Fatalf("first launch should acquire the slot: %v", err)
	}

	if _, err := guard.Begin(ctx, domain.TaskKindCoursePipeline, "c1"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second launch should be rejected with ErrAlreadyRunning, got %v", err)
	}
	if store.taskCount() != 1 {
		t.Errorf("rejection must not create a second record, have %d", store.taskCount())
	}

	// A different resource is independent.
	if _, err := guard.Begin(ctx, domain.TaskKindCoursePipeline, "c2"); err != nil {
		t.Errorf("different resource should acquire its own slot: %v", err)
	}
	// A different task kind over the same resource is independent too.
	if _, err := guard.Begin(ctx, domain.TaskKindTopicsAnalysis, "c1"); err != nil {
		t.Errorf("different task kind should acquire its own slot: %v", err)
	}

	if err := guard.Finish(ctx, task, domain.RunStatusCompleted, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := guard.Begin(ctx, domain.TaskKindCoursePipeline, "c1"); err != nil {
		t.Errorf("slot should be reclaimable after a terminal status: %v", err)
	}
}

func TestGuardReclaimResetsRecord(t *testing.T) {
	store := newFakeRunStore()
	guard := NewGuard(store)
	ctx := context.Background()

	task, err := guard.Begin(ctx, domain.TaskKindTopicsAnalysis, "g1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := guard.Finish(ctx, task, domain.RunStatusFailed, "boom"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	reclaimed, err := guard.Begin(ctx, domain.TaskKindTopicsAnalysis, "g1")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed.Status != domain.RunStatusRunning {
		t.Errorf("reclaimed slot should be running, got %s", reclaimed.Status)
	}
	if reclaimed.Result != "" {
		t.Errorf("reclaimed slot should drop the previous result, got %q", reclaimed.Result)
	}
	if store.taskCount() != 1 {
		t.Errorf("reclaim must reuse the record, have %d", store.taskCount())
	}
}
