package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
)

// notification keys and deep links
const (
	notifyServiceType = "course_pipeline"

	notifyStartedTitle   = "course_pipeline.started.title"
	notifyStartedBody    = "course_pipeline.started.body"
	notifyCompletedTitle = "course_pipeline.completed.title"
	notifyCompletedBody  = "course_pipeline.completed.body"
	notifyFailedTitle    = "course_pipeline.failed.title"
	notifyFailedBody     = "course_pipeline.failed.body"
	notifyOpenCourseKey  = "course_pipeline.action.open_course"
)

// PipelineOrchestrator sequences the course build saga: material handling,
// knowledge-base provisioning, transcription, ingestion, and enrichment. It
// owns the ingestion_status state machine and the notification stream.
// Launches return as soon as the background run is accepted; outcomes
// surface only through ingestion_status polling and notifications.
type PipelineOrchestrator struct {
	courses     CourseStore
	runs        RunStore
	guard       *Guard
	processor   *MaterialProcessor
	materials   MaterialStore
	builder     *KnowledgeBaseBuilder
	transcriber *TranscriptionStage
	ingester    *IngestionStage
	enricher    *EnrichmentStage
	notifier    external.Notifier
	serviceID   string
	linkBase    string

	wg sync.WaitGroup
}

// NewPipelineOrchestrator wires the saga controller. serviceID identifies
// this service in outgoing notifications; linkBase prefixes deep links.
func NewPipelineOrchestrator(
	courses CourseStore,
	materials MaterialStore,
	runs RunStore,
	guard *Guard,
	processor *MaterialProcessor,
	builder *KnowledgeBaseBuilder,
	transcriber *TranscriptionStage,
	ingester *IngestionStage,
	enricher *EnrichmentStage,
	notifier external.Notifier,
	serviceID, linkBase string,
) *PipelineOrchestrator {
	return &PipelineOrchestrator{
		courses:     courses,
		materials:   materials,
		runs:        runs,
		guard:       guard,
		processor:   processor,
		builder:     builder,
		transcriber: transcriber,
		ingester:    ingester,
		enricher:    enricher,
		notifier:    notifier,
		serviceID:   serviceID,
		linkBase:    linkBase,
	}
}

// Wait blocks until every in-flight pipeline run has finished. Used on
// shutdown so terminal writes are not cut off mid-flight.
func (p *PipelineOrchestrator) Wait() {
	p.wg.Wait()
}

// LaunchCreate starts the full build pipeline for a new course: store
// materials, provision the knowledge base, transcribe, ingest, enrich.
func (p *PipelineOrchestrator) LaunchCreate(ctx context.Context, course *domain.Course, files []UploadedFile, deepProcessing bool) (string, error) {
	return p.launch(ctx, course, domain.VariantCreate, func(ctx context.Context, run *domain.PipelineRun) error {
		if err := p.checkpoint(ctx, run, domain.StageMaterials); err != nil {
			return err
		}
		if _, err := p.processor.ProcessFiles(ctx, course, files, deepProcessing); err != nil {
			return NewStageError(domain.StageMaterials, err)
		}

		if err := p.checkpoint(ctx, run, domain.StageStateMachine); err != nil {
			return err
		}
		if err := p.builder.Build(ctx, course); err != nil {
			return err
		}
		if err := p.runs.SetRunExecutionARN(ctx, run.ID, course.ExecutionARN); err != nil {
			return err
		}

		return p.transcribeAndIngest(ctx, course, run, true)
	})
}

// LaunchUpdate starts the incremental pipeline after materials were added
// to a course that already has a knowledge base: store, transcribe, ingest.
// No rebuild and no enrichment.
func (p *PipelineOrchestrator) LaunchUpdate(ctx context.Context, course *domain.Course, files []UploadedFile, deepProcessing bool) (string, error) {
	if !course.HasKnowledgeBase() {
		return "", fmt.Errorf("course %s has no knowledge base to update", course.ID)
	}
	return p.launch(ctx, course, domain.VariantUpdate, func(ctx context.Context, run *domain.PipelineRun) error {
		if err := p.checkpoint(ctx, run, domain.StageMaterials); err != nil {
			return err
		}
		if _, err := p.processor.ProcessFiles(ctx, course, files, deepProcessing); err != nil {
			return NewStageError(domain.StageMaterials, err)
		}
		return p.transcribeAndIngest(ctx, course, run, false)
	})
}

// LaunchDeleteAndUpdate starts the removal pipeline: delete the named
// materials and their stored artifacts, then re-transcribe and re-ingest
// what remains.
func (p *PipelineOrchestrator) LaunchDeleteAndUpdate(ctx context.Context, course *domain.Course, materialIDs []string) (string, error) {
	if !course.HasKnowledgeBase() {
		return "", fmt.Errorf("course %s has no knowledge base to update", course.ID)
	}
	return p.launch(ctx, course, domain.VariantDeleteAndUpdate, func(ctx context.Context, run *domain.PipelineRun) error {
		if err := p.checkpoint(ctx, run, domain.StageMaterials); err != nil {
			return err
		}
		for _, id := range materialIDs {
			material, err := p.materials.Get(ctx, id)
			if err != nil {
				return NewStageError(domain.StageMaterials, fmt.Errorf("material %s: %w", id, err))
			}
			if material.CourseID != course.ID {
				return NewStageError(domain.StageMaterials,
					fmt.Errorf("material %s does not belong to course %s", id, course.ID))
			}
			if err := p.processor.DeleteMaterial(ctx, material); err != nil {
				return NewStageError(domain.StageMaterials, err)
			}
		}
		return p.transcribeAndIngest(ctx, course, run, false)
	})
}

// transcribeAndIngest is the shared tail of all three variants. enrich adds
// the create-only enrichment stage.
func (p *PipelineOrchestrator) transcribeAndIngest(ctx context.Context, course *domain.Course, run *domain.PipelineRun, enrich bool) error {
	if err := p.checkpoint(ctx, run, domain.StageTranscribe); err != nil {
		return err
	}
	if err := p.transcriber.Run(ctx, course.ID); err != nil {
		return err
	}

	if err := p.checkpoint(ctx, run, domain.StageIngestion); err != nil {
		return err
	}
	if err := p.ingester.Run(ctx, course); err != nil {
		return err
	}
	if err := p.runs.SetRunIngestionJobID(ctx, run.ID, course.IngestionJobID); err != nil {
		return err
	}

	if !enrich {
		return nil
	}
	if err := p.checkpoint(ctx, run, domain.StageEnrichment); err != nil {
		return err
	}
	return p.enricher.Run(ctx, course)
}

// launch performs the shared acceptance path: acquire the single-flight
// slot, move ingestion_status to IN_PROGRESS under its previous-state
// precondition, persist the run record, and detach the body. The returned
// run ID is available to the caller before any stage has executed.
func (p *PipelineOrchestrator) launch(ctx context.Context, course *domain.Course, variant domain.PipelineVariant, body func(ctx context.Context, run *domain.PipelineRun) error) (string, error) {
	task, err := p.guard.Begin(ctx, domain.TaskKindCoursePipeline, course.ID)
	if err != nil {
		return "", err
	}

	ok, err := p.courses.TransitionIngestionStatus(ctx, course.ID,
		[]domain.IngestionStatus{domain.IngestionStatusNone, domain.IngestionStatusCompleted, domain.IngestionStatusError},
		domain.IngestionStatusInProgress)
	if err == nil && !ok {
		err = ErrAlreadyRunning
	}
	if err != nil {
		if ferr := p.guard.Finish(ctx, task, domain.RunStatusFailed, "launch rejected"); ferr != nil {
			logger.FromContext(ctx).WithError(ferr).Error("Failed to release pipeline slot after rejected launch")
		}
		return "", err
	}
	course.IngestionStatus = domain.IngestionStatusInProgress

	run := &domain.PipelineRun{
		ID:        uuid.New().String(),
		CourseID:  course.ID,
		Variant:   variant,
		Stage:     domain.StageStarting,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := p.runs.CreateRun(ctx, run); err != nil {
		// Roll the acceptance back so the course is re-launchable.
		p.forceStatus(ctx, course.ID, domain.IngestionStatusError)
		if ferr := p.guard.Finish(ctx, task, domain.RunStatusFailed, "run record not persisted"); ferr != nil {
			logger.FromContext(ctx).WithError(ferr).Error("Failed to release pipeline slot after rejected launch")
		}
		return "", err
	}

	// Detach from the request: the run must outlive the HTTP call that
	// triggered it, but keep the request's log fields.
	bg := context.WithoutCancel(ctx)
	bg = logger.SetCourseID(bg, course.ID)
	bg = logger.SetRunID(bg, run.ID)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.execute(bg, course, task, run, variant, body)
	}()

	return run.ID, nil
}

// execute runs the pipeline body and settles every piece of launch state:
// ingestion_status, the run record, the guard slot, and exactly one
// terminal notification. Whatever happens inside the body, the course never
// stays IN_PROGRESS after this returns.
func (p *PipelineOrchestrator) execute(ctx context.Context, course *domain.Course, task *domain.TaskRun, run *domain.PipelineRun, variant domain.PipelineVariant, body func(ctx context.Context, run *domain.PipelineRun) error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	p.notify(ctx, course, external.Event{
		TitleKey: notifyStartedTitle,
		BodyKey:  notifyStartedBody,
		Priority: "normal",
	})

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline panicked: %v", r)
			}
		}()
		err = body(ctx, run)
	}()

	if err == nil {
		p.settle(ctx, course, task, run, domain.RunStatusCompleted, "")
		log.WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).
			Infof("Pipeline %s completed", variant)
		return
	}

	log.WithError(err).Errorf("Pipeline %s failed", variant)

	// Create-variant asymmetry: once the knowledge base exists, its data
	// source is bound, and an ingestion job ran, the course is usable even
	// if a later stage failed. Report success rather than scaring the
	// teacher away from a working knowledge base.
	if variant == domain.VariantCreate && p.knowledgeBaseUsable(ctx, course.ID) {
		log.Warn("Pipeline failed after knowledge base became usable, reporting completion")
		p.settle(ctx, course, task, run, domain.RunStatusCompleted, err.Error())
		return
	}

	p.settleFailed(ctx, course, task, run, err)
}

// knowledgeBaseUsable re-reads the course and reports whether the build got
// far enough that the knowledge base is queryable.
func (p *PipelineOrchestrator) knowledgeBaseUsable(ctx context.Context, courseID string) bool {
	course, err := p.courses.Get(ctx, courseID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to re-read course for failure policy")
		return false
	}
	return course.KnowledgeBaseID != "" && course.DataSourceID != "" && course.IngestionJobID != ""
}

// settle finalizes a successful (or absorbed-failure) run.
func (p *PipelineOrchestrator) settle(ctx context.Context, course *domain.Course, task *domain.TaskRun, run *domain.PipelineRun, status domain.RunStatus, note string) {
	if err := p.runs.SetRunStage(ctx, run.ID, domain.StageCompleted); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to checkpoint final stage")
	}
	if err := p.runs.FinishRun(ctx, run.ID, status, note); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to finalize run record")
	}
	p.forceStatus(ctx, course.ID, domain.IngestionStatusCompleted)
	if err := p.guard.Finish(ctx, task, status, note); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to release pipeline slot")
	}

	p.notify(ctx, course, external.Event{
		TitleKey: notifyCompletedTitle,
		BodyKey:  notifyCompletedBody,
		Priority: "normal",
		Actions: []external.EventAction{{
			TitleKey: notifyOpenCourseKey,
			Link:     fmt.Sprintf("%s/courses/%s", p.linkBase, course.ID),
		}},
	})
}

// settleFailed finalizes a failed run with one error notification naming
// the failing stage. Already-completed stages are left as they are.
func (p *PipelineOrchestrator) settleFailed(ctx context.Context, course *domain.Course, task *domain.TaskRun, run *domain.PipelineRun, cause error) {
	stage := FailedStage(cause, run.Stage)
	if err := p.runs.FinishRun(ctx, run.ID, domain.RunStatusFailed, cause.Error()); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to finalize run record")
	}
	p.forceStatus(ctx, course.ID, domain.IngestionStatusError)
	if err := p.guard.Finish(ctx, task, domain.RunStatusFailed, cause.Error()); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to release pipeline slot")
	}

	p.notify(ctx, course, external.Event{
		TitleKey: notifyFailedTitle,
		BodyKey:  notifyFailedBody,
		Data:     map[string]string{"stage": string(stage)},
		Priority: "high",
	})
}

// forceStatus writes a terminal ingestion status unconditionally. Used only
// on the settle paths, which own the course for the duration of the run.
func (p *PipelineOrchestrator) forceStatus(ctx context.Context, courseID string, status domain.IngestionStatus) {
	if err := p.courses.SetIngestionStatus(ctx, courseID, status); err != nil {
		logger.FromContext(ctx).WithError(err).
			Errorf("Failed to set ingestion status %s", status)
	}
}

// notify delivers one event, swallowing delivery errors: a broken
// notification channel must never change a pipeline outcome.
func (p *PipelineOrchestrator) notify(ctx context.Context, course *domain.Course, event external.Event) {
	if p.notifier == nil {
		return
	}
	event.UserID = course.TeacherID
	event.ServiceID = p.serviceID
	event.Type = notifyServiceType
	if event.Data == nil {
		event.Data = map[string]string{}
	}
	event.Data["course_id"] = course.ID
	event.Data["course_title"] = course.Title

	if err := p.notifier.SendEvent(ctx, event); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Notification delivery failed")
	}
}

// checkpoint persists the stage a run is entering.
func (p *PipelineOrchestrator) checkpoint(ctx context.Context, run *domain.PipelineRun, stage domain.PipelineStage) error {
	run.Stage = stage
	ctx = logger.SetStage(ctx, string(stage))
	logger.FromContext(ctx).Info("Entering pipeline stage")
	return p.runs.SetRunStage(ctx, run.ID, stage)
}

// RecoverStale finalizes runs that were left running by a previous process:
// the in-memory continuation is gone, so the run is marked failed, the
// course moved out of IN_PROGRESS, the slot released, and the owner
// notified. Called once on startup, before the API starts accepting launches.
func (p *PipelineOrchestrator) RecoverStale(ctx context.Context) error {
	stale, err := p.runs.ListRunsByStatus(ctx, domain.RunStatusRunning)
	if err != nil {
		return err
	}
	for _, run := range stale {
		log := logger.FromContext(ctx).
			WithField(logger.FieldRunID, run.ID).
			WithField(logger.FieldCourseID, run.CourseID)
		log.Warn("Finalizing pipeline run interrupted by restart")

		if err := p.runs.FinishRun(ctx, run.ID, domain.RunStatusFailed, "interrupted by service restart"); err != nil {
			return err
		}
		if _, err := p.courses.TransitionIngestionStatus(ctx, run.CourseID,
			[]domain.IngestionStatus{domain.IngestionStatusInProgress},
			domain.IngestionStatusError); err != nil {
			return err
		}

		task, err := p.guard.Find(ctx, domain.TaskKindCoursePipeline, run.CourseID)
		if err == nil && task.Status == domain.RunStatusRunning {
			if err := p.guard.Finish(ctx, task, domain.RunStatusFailed, "interrupted by service restart"); err != nil {
				return err
			}
		}

		if course, err := p.courses.Get(ctx, run.CourseID); err == nil {
			p.notify(ctx, course, external.Event{
				TitleKey: notifyFailedTitle,
				BodyKey:  notifyFailedBody,
				Data:     map[string]string{"stage": string(run.Stage)},
				Priority: "high",
			})
		}
	}
	return nil
}
