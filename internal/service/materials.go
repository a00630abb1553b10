package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
	"github.com/dariov/coursekb/internal/storage"
)

// UploadedFile is one raw file handed to the material processor.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// MaterialProcessor stores uploaded files, extracts transcripts for
// container formats, and persists material rows.
type MaterialProcessor struct {
	courses    CourseStore
	materials  MaterialStore
	store      storage.ObjectStorage
	structurer external.DocumentStructurer
	workers    int
}

// NewMaterialProcessor creates a material processor with a bounded upload
// worker pool.
func NewMaterialProcessor(courses CourseStore, materials MaterialStore, store storage.ObjectStorage, structurer external.DocumentStructurer, workers int) *MaterialProcessor {
	if workers < 1 {
		workers = 2
	}
	return &MaterialProcessor{
		courses:    courses,
		materials:  materials,
		store:      store,
		structurer: structurer,
		workers:    workers,
	}
}

var nonWordRe = regexp.MustCompile(`\W`)

// sanitizeFilename rewrites the base name so it is safe as an object key
// segment, keeping the extension.
func sanitizeFilename(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(path.Base(name), ext)
	return nonWordRe.ReplaceAllString(base, "_") + strings.ToLower(ext)
}

// ProcessFiles uploads and registers a batch of files for a course. Files
// are processed concurrently under the worker pool; one file's failure never
// aborts its siblings, and every error is reported in the joined result.
// Any material change also clears a stale terminal ingestion status, so a
// prior completion never masks unprocessed uploads.
func (p *MaterialProcessor) ProcessFiles(ctx context.Context, course *domain.Course, files []UploadedFile, deepProcessing bool) ([]domain.Material, error) {
	if len(files) == 0 {
		return nil, nil
	}

	type result struct {
		material *domain.Material
		err      error
	}

	jobs := make(chan int)
	results := make([]result, len(files))
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				m, err := p.processFile(ctx, course, files[i], deepProcessing)
				results[i] = result{material: m, err: err}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var materials []domain.Material
	var errs []error
	for i, res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", files[i].Name, res.err))
			continue
		}
		materials = append(materials, *res.material)
	}

	if len(materials) > 0 {
		if err := p.invalidateStaleStatus(ctx, course.ID); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return materials, joinErrors(errs)
	}
	return materials, nil
}

func (p *MaterialProcessor) processFile(ctx context.Context, course *domain.Course, file UploadedFile, deepProcessing bool) (*domain.Material, error) {
	key := fmt.Sprintf("materials/%s/%s", course.ID, sanitizeFilename(file.Name))
	if err := p.store.Upload(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), file.ContentType); err != nil {
		return nil, err
	}

	material := &domain.Material{
		ID:         uuid.New().String(),
		CourseID:   course.ID,
		Title:      file.Name,
		Type:       file.ContentType,
		StorageURI: p.store.URI(key),
		UploadedAt: time.Now(),
	}

	switch {
	case isEPUB(file):
		transcriptURI, err := p.extractEPUBTranscript(ctx, key, file.Data)
		if err != nil {
			return nil, fmt.Errorf("epub transcript: %w", err)
		}
		material.TranscriptionURI = transcriptURI

	case deepProcessing && isPDF(file):
		structuredURI, err := p.structureDocument(ctx, course, key, file.Name)
		if err != nil {
			return nil, fmt.Errorf("document structuring: %w", err)
		}
		material.TranscriptionURI = structuredURI
	}

	if err := p.materials.Create(ctx, material); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).
		WithField(logger.FieldMaterialID, material.ID).
		WithField(logger.FieldSize, len(file.Data)).
		Info("Material stored")
	return material, nil
}

// invalidateStaleStatus clears a terminal ingestion status after an
// out-of-pipeline material change. During a pipeline run the course is
// IN_PROGRESS, so the precondition makes this a no-op there.
func (p *MaterialProcessor) invalidateStaleStatus(ctx context.Context, courseID string) error {
	_, err := p.courses.TransitionIngestionStatus(ctx, courseID,
		[]domain.IngestionStatus{domain.IngestionStatusCompleted, domain.IngestionStatusError},
		domain.IngestionStatusNone)
	return err
}

func isEPUB(f UploadedFile) bool {
	return f.ContentType == "application/epub+zip" || strings.HasSuffix(strings.ToLower(f.Name), ".epub")
}

func isPDF(f UploadedFile) bool {
	return f.ContentType == "application/pdf" || strings.HasSuffix(strings.ToLower(f.Name), ".pdf")
}

// extractEPUBTranscript pulls the readable text out of an EPUB container and
// uploads it next to the original. An EPUB is a zip of XHTML documents, so
// the transcript is the tag-stripped concatenation of its content entries.
func (p *MaterialProcessor) extractEPUBTranscript(ctx context.Context, key string, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, entry := range reader.File {
		name := strings.ToLower(entry.Name)
		if !strings.HasSuffix(name, ".xhtml") && !strings.HasSuffix(name, ".html") && !strings.HasSuffix(name, ".htm") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return "", err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		text.WriteString(stripMarkup(string(raw)))
		text.WriteString("\n\n")
	}

	transcript := strings.TrimSpace(text.String())
	if transcript == "" {
		return "", fmt.Errorf("no readable content found")
	}

	transcriptKey := strings.TrimSuffix(key, path.Ext(key)) + ".txt"
	if err := p.store.Upload(ctx, transcriptKey, strings.NewReader(transcript), int64(len(transcript)), "text/plain"); err != nil {
		return "", err
	}
	return p.store.URI(transcriptKey), nil
}

var markupRe = regexp.MustCompile(`(?s)<[^>]*>`)

func stripMarkup(s string) string {
	return strings.TrimSpace(markupRe.ReplaceAllString(s, " "))
}

// structureDocument runs the external structuring step for a document,
// deriving metadata positionally from the underscore-split filename against
// the course's filter schema, and uploads the metadata sidecar.
func (p *MaterialProcessor) structureDocument(ctx context.Context, course *domain.Course, key, originalName string) (string, error) {
	if p.structurer == nil {
		return "", fmt.Errorf("document structuring is not configured")
	}

	metadata := deriveMetadata(originalName, course.FilterStructure())

	result, err := p.structurer.Structure(ctx, external.StructureRequest{
		CourseID: course.ID,
		FileURI:  p.store.URI(key),
		Metadata: metadata,
	})
	if err != nil {
		return "", err
	}

	if len(metadata) > 0 {
		sidecar, err := json.Marshal(map[string]interface{}{"metadataAttributes": metadata})
		if err != nil {
			return "", err
		}
		sidecarKey := key + ".metadata.json"
		if err := p.store.Upload(ctx, sidecarKey, bytes.NewReader(sidecar), int64(len(sidecar)), "application/json"); err != nil {
			return "", err
		}
	}
	return result.StructuredURI, nil
}

// deriveMetadata maps underscore-separated filename segments onto the filter
// schema by position. Missing trailing segments are simply absent.
func deriveMetadata(name string, schema []string) map[string]string {
	if len(schema) == 0 {
		return nil
	}
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	segments := strings.Split(base, "_")

	metadata := make(map[string]string)
	for i, field := range schema {
		if i >= len(segments) {
			break
		}
		value := strings.TrimSpace(segments[i])
		if value == "" {
			continue
		}
		metadata[field] = value
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

// DeleteMaterial removes a material row together with its stored artifacts:
// the original object, any transcript, and any structuring sidecar.
func (p *MaterialProcessor) DeleteMaterial(ctx context.Context, material *domain.Material) error {
	var errs []error

	if key, ok := p.store.KeyForURI(material.StorageURI); ok {
		if err := p.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
		if err := p.store.Delete(ctx, key+".metadata.json"); err != nil {
			errs = append(errs, err)
		}
	}
	if key, ok := p.store.KeyForURI(material.TranscriptionURI); ok && material.TranscriptionURI != material.StorageURI {
		if err := p.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	if err := p.materials.Delete(ctx, material.ID); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		if err := p.invalidateStaleStatus(ctx, material.CourseID); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%d operations failed: %s", len(errs), strings.Join(msgs, "; "))
}
