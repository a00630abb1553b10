package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
)

// Material status texts written when a document fails the vector-store sync
// but a derived rendition of it made it in.
const (
	statusTranscribedAvailable = "Transcribed version available"
	statusProcessedAvailable   = "Processed version available"
)

// IngestionStage syncs a course's stored materials into its knowledge base
// and reconciles per-document failures onto material rows.
type IngestionStage struct {
	courses      CourseStore
	materials    MaterialStore
	runner       external.IngestionRunner
	pollInterval time.Duration
	pollTimeout  time.Duration
	sleep        sleepFunc
}

// NewIngestionStage creates an ingestion stage.
func NewIngestionStage(courses CourseStore, materials MaterialStore, runner external.IngestionRunner, pollInterval, pollTimeout time.Duration) *IngestionStage {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Minute
	}
	return &IngestionStage{
		courses:      courses,
		materials:    materials,
		runner:       runner,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		sleep:        contextSleep,
	}
}

// Run starts one sync job for the course and polls it to a terminal state.
// A job that completes with individual document failures still succeeds:
// the failures are written onto the affected material rows instead of
// failing the course. A job that fails outright raises, with no material
// mutated.
func (s *IngestionStage) Run(ctx context.Context, course *domain.Course) error {
	if course.KnowledgeBaseID == "" || course.DataSourceID == "" {
		return NewStageError(domain.StageIngestion,
			fmt.Errorf("course %s has no knowledge base to ingest into", course.ID))
	}

	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "ingestion")

	jobID, err := s.runner.Start(ctx, course.KnowledgeBaseID, course.DataSourceID)
	if err != nil {
		return NewStageError(domain.StageIngestion, err)
	}
	if err := s.courses.SetIngestionJobID(ctx, course.ID, jobID); err != nil {
		return NewStageError(domain.StageIngestion, err)
	}
	course.IngestionJobID = jobID
	log.Info("Ingestion job started")

	deadline := time.Now().Add(s.pollTimeout)
	for {
		if !time.Now().Before(deadline) {
			return NewStageError(domain.StageIngestion,
				fmt.Errorf("ingestion job %s still running after %s", jobID, s.pollTimeout))
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return NewStageError(domain.StageIngestion, err)
		}

		job, err := s.runner.Get(ctx, course.KnowledgeBaseID, course.DataSourceID, jobID)
		if err != nil {
			return NewStageError(domain.StageIngestion, err)
		}
		if !job.Status.Terminal() {
			continue
		}

		if job.Status != external.IngestionStatusComplete {
			return NewStageError(domain.StageIngestion,
				fmt.Errorf("ingestion job %s finished with status %s", jobID, job.Status))
		}

		if job.DocumentsFailed > 0 {
			log.WithField(logger.FieldCount, job.DocumentsFailed).
				Warn("Ingestion completed with document failures")
			if err := s.reconcileFailures(ctx, job.FailureReasons); err != nil {
				return NewStageError(domain.StageIngestion, err)
			}
		}
		return nil
	}
}

// reconcileFailures writes each parsed document failure onto the material
// it refers to, matched by storage URI. A material whose derived rendition
// (transcript or structured document) did ingest gets an informational
// status instead of the raw error.
func (s *IngestionStage) reconcileFailures(ctx context.Context, reasons []string) error {
	for _, failure := range ParseFailureReasons(reasons) {
		material, err := s.materials.GetByStorageURI(ctx, failure.FileURI)
		if err != nil {
			logger.FromContext(ctx).WithError(err).
				Warnf("No material matches failed document %s", failure.FileURI)
			continue
		}
		if err := s.materials.SetStatus(ctx, material.ID, failureStatus(material, failure)); err != nil {
			return fmt.Errorf("persist status for %s: %w", material.ID, err)
		}
	}
	return nil
}

func failureStatus(m *domain.Material, failure DocumentFailure) string {
	if m.TranscriptionURI != "" {
		if strings.HasPrefix(m.Type, "audio/") || strings.HasPrefix(m.Type, "video/") {
			return statusTranscribedAvailable
		}
		return statusProcessedAvailable
	}
	return failure.ErrorMessage
}

// JobSummary is a point-in-time view of a course's last sync job, with
// per-document failures absorbed the same way the pipeline absorbs them.
type JobSummary struct {
	IngestionStatus domain.IngestionStatus `json:"ingestion_status"`
	JobID           string                 `json:"job_id,omitempty"`
	JobStatus       string                 `json:"job_status,omitempty"`
	DocumentsFailed int64                  `json:"documents_failed,omitempty"`
}

// Inspect reports the course's local status alongside the live state of its
// last sync job. A completed job with document failures reconciles them onto
// materials here too, so polling clients see the same absorbed outcome the
// pipeline produces.
func (s *IngestionStage) Inspect(ctx context.Context, course *domain.Course) (*JobSummary, error) {
	summary := &JobSummary{IngestionStatus: course.IngestionStatus}
	if course.IngestionJobID == "" || course.KnowledgeBaseID == "" {
		return summary, nil
	}

	job, err := s.runner.Get(ctx, course.KnowledgeBaseID, course.DataSourceID, course.IngestionJobID)
	if err != nil {
		return nil, err
	}
	summary.JobID = job.ID
	summary.JobStatus = string(job.Status)
	summary.DocumentsFailed = job.DocumentsFailed

	if job.Status == external.IngestionStatusComplete && job.DocumentsFailed > 0 {
		if err := s.reconcileFailures(ctx, job.FailureReasons); err != nil {
			return nil, err
		}
	}
	return summary, nil
}
