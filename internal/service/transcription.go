package service

import (
	"context"
	"fmt"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
)

// TranscriptionStage transcribes a course's audio and video materials that
// do not have a transcript yet.
type TranscriptionStage struct {
	materials    MaterialStore
	preprocessor external.TranscriptionPreprocessor
}

// NewTranscriptionStage creates a transcription stage.
func NewTranscriptionStage(materials MaterialStore, preprocessor external.TranscriptionPreprocessor) *TranscriptionStage {
	return &TranscriptionStage{materials: materials, preprocessor: preprocessor}
}

// Run scans the course for audio/video materials without a transcript and,
// when any exist, submits them as one batched job. No qualifying materials
// means no preprocessor call at all.
func (t *TranscriptionStage) Run(ctx context.Context, courseID string) error {
	materials, err := t.materials.ListByCourse(ctx, courseID)
	if err != nil {
		return NewStageError(domain.StageTranscribe, err)
	}

	var requests []external.TranscriptionRequest
	byID := make(map[string]*domain.Material)
	for i := range materials {
		m := &materials[i]
		if !m.NeedsTranscription() {
			continue
		}
		requests = append(requests, external.TranscriptionRequest{
			MaterialID: m.ID,
			FileURI:    m.StorageURI,
		})
		byID[m.ID] = m
	}
	if len(requests) == 0 {
		return nil
	}

	results, err := t.preprocessor.Run(ctx, courseID, requests)
	if err != nil {
		return NewStageError(domain.StageTranscribe, err)
	}

	for _, res := range results {
		m, ok := byID[res.MaterialID]
		if !ok {
			logger.FromContext(ctx).
				WithField(logger.FieldMaterialID, res.MaterialID).
				Warn("Transcription result for unknown material")
			continue
		}
		if res.TranscribedURI == "" {
			continue
		}
		if err := t.materials.SetTranscriptionURI(ctx, m.ID, res.TranscribedURI); err != nil {
			return NewStageError(domain.StageTranscribe,
				fmt.Errorf("persist transcript for %s: %w", m.ID, err))
		}
	}
	return nil
}
