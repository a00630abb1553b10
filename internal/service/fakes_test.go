package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
)

// instantSleep makes poll loops and retries run without real delays.
func instantSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

type fakeCourseStore struct {
	mu      sync.Mutex
	courses map[string]*domain.Course

	failSetKnowledgeBase error
	statusHistory        []domain.IngestionStatus
}

func newFakeCourseStore(courses ...*domain.Course) *fakeCourseStore {
	s := &fakeCourseStore{courses: make(map[string]*domain.Course)}
	for _, c := range courses {
		cp := *c
		s.courses[c.ID] = &cp
	}
	return s
}

func (s *fakeCourseStore) Create(ctx context.Context, course *domain.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *course
	s.courses[course.ID] = &cp
	return nil
}

func (s *fakeCourseStore) Get(ctx context.Context, id string) (*domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCourseStore) ListByGroup(ctx context.Context, groupID string) ([]domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Course
	for _, c := range s.courses {
		if c.GroupID == groupID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCourseStore) TransitionIngestionStatus(ctx context.Context, id string, from []domain.IngestionStatus, to domain.IngestionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return false, fmt.Errorf("course %s not found", id)
	}
	for _, f := range from {
		if c.IngestionStatus == f {
			c.IngestionStatus = to
			s.statusHistory = append(s.statusHistory, to)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCourseStore) SetIngestionStatus(ctx context.Context, id string, status domain.IngestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return fmt.Errorf("course %s not found", id)
	}
	c.IngestionStatus = status
	s.statusHistory = append(s.statusHistory, status)
	return nil
}

func (s *fakeCourseStore) SetExecutionARN(ctx context.Context, id, arn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[id].ExecutionARN = arn
	return nil
}

func (s *fakeCourseStore) SetKnowledgeBase(ctx context.Context, id, kbID, dsID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetKnowledgeBase != nil {
		return s.failSetKnowledgeBase
	}
	s.courses[id].KnowledgeBaseID = kbID
	s.courses[id].DataSourceID = dsID
	return nil
}

func (s *fakeCourseStore) SetIngestionJobID(ctx context.Context, id, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[id].IngestionJobID = jobID
	return nil
}

func (s *fakeCourseStore) SetDescription(ctx context.Context, id, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[id].Description = description
	return nil
}

func (s *fakeCourseStore) SetSampleQuestions(ctx context.Context, id string, questions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[id].SampleQuestions = questions
	return nil
}

func (s *fakeCourseStore) get(id string) *domain.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.courses[id]
	return &cp
}

type fakeMaterialStore struct {
	mu        sync.Mutex
	materials map[string]*domain.Material

	statusWrites map[string]string
}

func newFakeMaterialStore(materials ...*domain.Material) *fakeMaterialStore {
	s := &fakeMaterialStore{
		materials:    make(map[string]*domain.Material),
		statusWrites: make(map[string]string),
	}
	for _, m := range materials {
		cp := *m
		s.materials[m.ID] = &cp
	}
	return s
}

func (s *fakeMaterialStore) Create(ctx context.Context, material *domain.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *material
	s.materials[material.ID] = &cp
	return nil
}

func (s *fakeMaterialStore) Get(ctx context.Context, id string) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return nil, fmt.Errorf("material %s not found", id)
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMaterialStore) GetByStorageURI(ctx context.Context, uri string) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.materials {
		if m.StorageURI == uri {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no material with storage uri %s", uri)
}

func (s *fakeMaterialStore) ListByCourse(ctx context.Context, courseID string) ([]domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Material
	for _, m := range s.materials {
		if m.CourseID == courseID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeMaterialStore) SetTranscriptionURI(ctx context.Context, id, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return fmt.Errorf("material %s not found", id)
	}
	m.TranscriptionURI = uri
	return nil
}

func (s *fakeMaterialStore) SetStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return fmt.Errorf("material %s not found", id)
	}
	m.Status = status
	s.statusWrites[id] = status
	return nil
}

func (s *fakeMaterialStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.materials, id)
	return nil
}

// fakeRunStore implements RunStore and GuardStore with the same slot
// semantics the unique index gives the real repository.
type fakeRunStore struct {
	mu    sync.Mutex
	runs  map[string]*domain.PipelineRun
	tasks map[string]*domain.TaskRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:  make(map[string]*domain.PipelineRun),
		tasks: make(map[string]*domain.TaskRun),
	}
}

func taskKey(kind domain.TaskKind, resourceID string) string {
	return string(kind) + "/" + resourceID
}

func (s *fakeRunStore) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) SetRunStage(ctx context.Context, id string, stage domain.PipelineStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.Stage = stage
	}
	return nil
}

func (s *fakeRunStore) SetRunExecutionARN(ctx context.Context, id, arn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.ExecutionARN = arn
	}
	return nil
}

func (s *fakeRunStore) SetRunIngestionJobID(ctx context.Context, id, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.IngestionJobID = jobID
	}
	return nil
}

func (s *fakeRunStore) FinishRun(ctx context.Context, id string, status domain.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.Status = status
		r.Error = errMsg
		now := time.Now()
		r.FinishedAt = &now
	}
	return nil
}

func (s *fakeRunStore) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PipelineRun
	for _, r := range s.runs {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeRunStore) ClaimTask(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := taskKey(kind, resourceID)
	if existing, ok := s.tasks[key]; ok {
		if existing.Status == domain.RunStatusRunning || existing.Status == domain.RunStatusPending {
			return nil, false, nil
		}
		existing.Status = domain.RunStatusRunning
		existing.Result = ""
		existing.StartedAt = time.Now()
		existing.FinishedAt = nil
		cp := *existing
		return &cp, true, nil
	}
	task := &domain.TaskRun{
		ID:         key,
		TaskKind:   kind,
		ResourceID: resourceID,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	s.tasks[key] = task
	cp := *task
	return &cp, true, nil
}

func (s *fakeRunStore) ReleaseTask(ctx context.Context, id string, status domain.RunStatus, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			t.Status = status
			t.Result = result
			now := time.Now()
			t.FinishedAt = &now
			return nil
		}
	}
	return fmt.Errorf("task %s not found", id)
}

func (s *fakeRunStore) FindTask(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskKey(kind, resourceID)]
	if !ok {
		return nil, fmt.Errorf("no task for %s/%s", kind, resourceID)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeRunStore) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *fakeRunStore) run(id string) *domain.PipelineRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.runs[id]
	return &cp
}

type fakeStorage struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{bucket: "test-bucket", objects: make(map[string][]byte)}
}

func (s *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) DeleteByPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) URI(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *fakeStorage) KeyForURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "s3://"+s.bucket+"/")
	if !ok {
		return "", false
	}
	return rest, true
}

func (s *fakeStorage) Bucket() string {
	return s.bucket
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type fakeExecutor struct {
	mu       sync.Mutex
	arn      string
	statuses []external.WorkflowStatus
	output   *external.WorkflowOutput
	startErr error
	starts   int
}

func (e *fakeExecutor) Start(ctx context.Context, input external.WorkflowInput) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if e.startErr != nil {
		return "", e.startErr
	}
	if e.arn == "" {
		e.arn = "arn:aws:states:::execution/test"
	}
	return e.arn, nil
}

func (e *fakeExecutor) Describe(ctx context.Context, arn string) (*external.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := external.WorkflowStatusRunning
	if len(e.statuses) > 0 {
		status = e.statuses[0]
		if len(e.statuses) > 1 {
			e.statuses = e.statuses[1:]
		}
	}
	exec := &external.WorkflowExecution{Status: status}
	if status == external.WorkflowStatusSucceeded {
		exec.Output = e.output
	}
	return exec, nil
}

type fakePreprocessor struct {
	mu      sync.Mutex
	calls   [][]external.TranscriptionRequest
	results []external.TranscriptionResult
	err     error
}

func (p *fakePreprocessor) Run(ctx context.Context, courseID string, requests []external.TranscriptionRequest) ([]external.TranscriptionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, requests)
	if p.err != nil {
		return nil, p.err
	}
	if p.results != nil {
		return p.results, nil
	}
	// Default: echo a transcript next to each file.
	var out []external.TranscriptionResult
	for _, req := range requests {
		out = append(out, external.TranscriptionResult{
			MaterialID:     req.MaterialID,
			TranscribedURI: req.FileURI + ".txt",
		})
	}
	return out, nil
}

func (p *fakePreprocessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeIngestionRunner struct {
	mu       sync.Mutex
	job      *external.IngestionJob
	startErr error
	starts   int
	gets     int
}

func (r *fakeIngestionRunner) Start(ctx context.Context, kbID, dsID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.startErr != nil {
		return "", r.startErr
	}
	return "job-1", nil
}

func (r *fakeIngestionRunner) Get(ctx context.Context, kbID, dsID, jobID string) (*external.IngestionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.job == nil {
		return &external.IngestionJob{ID: jobID, Status: external.IngestionStatusComplete}, nil
	}
	cp := *r.job
	cp.ID = jobID
	return &cp, nil
}

type fakeInference struct {
	mu            sync.Mutex
	summary       string
	questions     []string
	summaryErrs   int // fail this many calls before succeeding
	questionErrs  int
	summaryCalls  int
	questionCalls int
}

func (f *fakeInference) GenerateSummary(ctx context.Context, kbID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	if f.summaryCalls <= f.summaryErrs {
		return "", fmt.Errorf("summary generation unavailable")
	}
	if f.summary == "" {
		return "A generated course overview.", nil
	}
	return f.summary, nil
}

func (f *fakeInference) GenerateSampleQuestions(ctx context.Context, kbID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	if f.questionCalls <= f.questionErrs {
		return nil, fmt.Errorf("question generation unavailable")
	}
	if f.questions == nil {
		return []string{"What does this course cover?"}, nil
	}
	return f.questions, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []external.Event
	err    error
}

func (n *fakeNotifier) SendEvent(ctx context.Context, event external.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *fakeNotifier) byTitle(titleKey string) []external.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []external.Event
	for _, e := range n.events {
		if e.TitleKey == titleKey {
			out = append(out, e)
		}
	}
	return out
}

type fakeStructurer struct {
	mu    sync.Mutex
	calls []external.StructureRequest
	err   error
}

func (f *fakeStructurer) Structure(ctx context.Context, req external.StructureRequest) (*external.StructureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &external.StructureResult{StructuredURI: req.FileURI + ".md"}, nil
}
