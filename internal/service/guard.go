package service

import (
	"context"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/logger"
)

// Guard is the single-flight gate in front of long-running background
// tasks: at most one live run per (task kind, resource).
type Guard struct {
	store GuardStore
}

// NewGuard creates a guard backed by the given store.
func NewGuard(store GuardStore) *Guard {
	return &Guard{store: store}
}

// Begin acquires the slot for (kind, resourceID). The claim is a
// conditional insert against a unique index, so two concurrent launches
// cannot both win and no second record is ever created; a live run rejects
// the launch with ErrAlreadyRunning.
func (g *Guard) Begin(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, error) {
	task, acquired, err := g.store.ClaimTask(ctx, kind, resourceID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logger.FromContext(ctx).
			WithField(logger.FieldComponent, "guard").
			Warnf("Rejected %s launch: already running for %s", kind, resourceID)
		return nil, ErrAlreadyRunning
	}
	return task, nil
}

// Finish releases the slot with a terminal status and optional result text.
func (g *Guard) Finish(ctx context.Context, task *domain.TaskRun, status domain.RunStatus, result string) error {
	return g.store.ReleaseTask(ctx, task.ID, status, result)
}

// Find returns the current slot record for (kind, resourceID).
func (g *Guard) Find(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, error) {
	return g.store.FindTask(ctx, kind, resourceID)
}
