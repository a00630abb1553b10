package service

import (
	"context"
	"testing"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
)

func newTestIngester(courses *fakeCourseStore, materials *fakeMaterialStore, runner *fakeIngestionRunner) *IngestionStage {
	s := NewIngestionStage(courses, materials, runner, 15*time.Second, time.Hour)
	s.sleep = instantSleep
	return s
}

func ingestedCourse() *domain.Course {
	return &domain.Course{ID: "c1", TeacherID: "t1", KnowledgeBaseID: "kb1", DataSourceID: "ds1"}
}

func TestIngestionCleanCompletion(t *testing.T) {
	course := ingestedCourse()
	courses := newFakeCourseStore(course)
	materials := newFakeMaterialStore()
	runner := &fakeIngestionRunner{}

	if err := newTestIngester(courses, materials, runner).Run(context.Background(), course); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if courses.get("c1").IngestionJobID != "job-1" {
		t.Error("expected job id persisted")
	}
	if len(materials.statusWrites) != 0 {
		t.Errorf("clean completion must not touch materials, wrote %v", materials.statusWrites)
	}
}

func TestIngestionAbsorbsDocumentFailures(t *testing.T) {
	course := ingestedCourse()
	courses := newFakeCourseStore(course)
	materials := newFakeMaterialStore(
		&domain.Material{ID: "m1", CourseID: "c1", Type: "audio/mpeg",
			StorageURI: "s3://b/materials/c1/talk.mp3", TranscriptionURI: "s3://b/materials/c1/talk.txt"},
		&domain.Material{ID: "m2", CourseID: "c1", Type: "application/pdf",
			StorageURI: "s3://b/materials/c1/notes.pdf"},
		&domain.Material{ID: "m3", CourseID: "c1", Type: "application/pdf",
			StorageURI: "s3://b/materials/c1/ok.pdf"},
	)
	runner := &fakeIngestionRunner{job: &external.IngestionJob{
		Status:          external.IngestionStatusComplete,
		DocumentsFailed: 2,
		FailureReasons: []string{
			"Encountered error: Ignored 1 files because their format is unsupported [Files: s3://b/materials/c1/talk.mp3]",
			"Encountered error: Document parsing failed [Files: s3://b/materials/c1/notes.pdf]",
		},
	}}

	// Partial document failure is absorbed: the stage still succeeds.
	if err := newTestIngester(courses, materials, runner).Run(context.Background(), course); err != nil {
		t.Fatalf("expected absorbed completion, got %v", err)
	}

	if len(materials.statusWrites) != 2 {
		t.Fatalf("expected exactly 2 material status writes, got %v", materials.statusWrites)
	}
	if got := materials.statusWrites["m1"]; got != statusTranscribedAvailable {
		t.Errorf("audio material with transcript should read %q, got %q", statusTranscribedAvailable, got)
	}
	if got := materials.statusWrites["m2"]; got != "Document parsing failed." {
		t.Errorf("material without derived rendition should carry the cleaned message, got %q", got)
	}
	if _, touched := materials.statusWrites["m3"]; touched {
		t.Error("ingested material must not be touched")
	}
}

func TestIngestionJobFailureMutatesNothing(t *testing.T) {
	for _, status := range []external.IngestionStatus{
		external.IngestionStatusFailed,
		external.IngestionStatusStopped,
	} {
		t.Run(string(status), func(t *testing.T) {
			course := ingestedCourse()
			courses := newFakeCourseStore(course)
			materials := newFakeMaterialStore(
				&domain.Material{ID: "m1", CourseID: "c1", Type: "application/pdf",
					StorageURI: "s3://b/materials/c1/notes.pdf"},
			)
			runner := &fakeIngestionRunner{job: &external.IngestionJob{
				Status:         status,
				FailureReasons: []string{"Encountered error: boom [Files: s3://b/materials/c1/notes.pdf]"},
			}}

			err := newTestIngester(courses, materials, runner).Run(context.Background(), course)
			if err == nil {
				t.Fatal("expected stage error")
			}
			if FailedStage(err, "") != domain.StageIngestion {
				t.Errorf("expected ingestion stage, got %v", err)
			}
			if len(materials.statusWrites) != 0 {
				t.Errorf("whole-job failure must not mutate materials, wrote %v", materials.statusWrites)
			}
		})
	}
}

func TestIngestionRequiresKnowledgeBase(t *testing.T) {
	course := &domain.Course{ID: "c1", TeacherID: "t1"}
	courses := newFakeCourseStore(course)
	runner := &fakeIngestionRunner{}

	err := newTestIngester(courses, newFakeMaterialStore(), runner).Run(context.Background(), course)
	if err == nil {
		t.Fatal("expected error for course without knowledge base")
	}
	if runner.starts != 0 {
		t.Errorf("no job should be started, got %d", runner.starts)
	}
}

func TestInspectReportsLiveJobAndAbsorbsFailures(t *testing.T) {
	course := ingestedCourse()
	course.IngestionJobID = "job-1"
	course.IngestionStatus = domain.IngestionStatusCompleted
	courses := newFakeCourseStore(course)
	materials := newFakeMaterialStore(
		&domain.Material{ID: "m1", CourseID: "c1", Type: "application/pdf",
			StorageURI: "s3://b/materials/c1/notes.pdf"},
	)
	runner := &fakeIngestionRunner{job: &external.IngestionJob{
		Status:          external.IngestionStatusComplete,
		DocumentsFailed: 1,
		FailureReasons:  []string{"Encountered error: Document parsing failed [Files: s3://b/materials/c1/notes.pdf]"},
	}}

	summary, err := newTestIngester(courses, materials, runner).Inspect(context.Background(), course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.IngestionStatus != domain.IngestionStatusCompleted {
		t.Errorf("expected local status COMPLETED, got %s", summary.IngestionStatus)
	}
	if summary.JobStatus != string(external.IngestionStatusComplete) || summary.DocumentsFailed != 1 {
		t.Errorf("expected live job state in summary, got %+v", summary)
	}
	if materials.statusWrites["m1"] != "Document parsing failed." {
		t.Errorf("expected failure reconciled onto the material, got %v", materials.statusWrites)
	}
}
