package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"

	"github.com/dariov/coursekb/internal/logger"
)

// TranscriptionRequest names one stored file that needs a transcript.
type TranscriptionRequest struct {
	MaterialID string `json:"material_id"`
	FileURI    string `json:"file_uri"`
}

// TranscriptionResult carries the transcript location produced for one file.
type TranscriptionResult struct {
	MaterialID     string `json:"material_id"`
	TranscribedURI string `json:"transcribed_uri"`
}

// TranscriptionPreprocessor runs one batched transcription job over a set of
// audio/video files and blocks until the transcripts exist.
type TranscriptionPreprocessor interface {
	Run(ctx context.Context, courseID string, requests []TranscriptionRequest) ([]TranscriptionResult, error)
}

type transcriptionInput struct {
	CourseID string                 `json:"course_id"`
	Files    []TranscriptionRequest `json:"files"`
}

type transcriptionOutput struct {
	Results []TranscriptionResult `json:"results"`
}

// SFNTranscriptionPreprocessor drives the transcription preprocessing state
// machine. The poll budget scales with batch size: a batch of n files is
// given heartbeatMin minutes of polling per file before the job is declared
// stuck.
type SFNTranscriptionPreprocessor struct {
	client          StepFunctionsClient
	stateMachineARN string
	pollInterval    time.Duration
	heartbeatMin    int
}

// NewSFNTranscriptionPreprocessor creates a preprocessor bound to one state machine.
func NewSFNTranscriptionPreprocessor(client StepFunctionsClient, stateMachineARN string, pollInterval time.Duration, heartbeatMin int) *SFNTranscriptionPreprocessor {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if heartbeatMin <= 0 {
		heartbeatMin = 10
	}
	return &SFNTranscriptionPreprocessor{
		client:          client,
		stateMachineARN: stateMachineARN,
		pollInterval:    pollInterval,
		heartbeatMin:    heartbeatMin,
	}
}

// Run starts one execution for the whole batch and polls it to completion.
func (p *SFNTranscriptionPreprocessor) Run(ctx context.Context, courseID string, requests []TranscriptionRequest) ([]TranscriptionResult, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(transcriptionInput{CourseID: courseID, Files: requests})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcription input: %w", err)
	}

	started, err := p.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(p.stateMachineARN),
		Name:            aws.String(fmt.Sprintf("transcribe-%s-%s", courseID, uuid.New().String()[:8])),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start transcription job: %w", err)
	}
	arn := aws.ToString(started.ExecutionArn)

	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "transcription")
	log.WithField(logger.FieldCount, len(requests)).Info("Transcription job started")

	maxAttempts := p.heartbeatMin * 4 * len(requests)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		out, err := p.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
			ExecutionArn: aws.String(arn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to poll transcription job: %w", err)
		}

		status := workflowStatus(out.Status)
		if !status.Terminal() {
			continue
		}
		if status != WorkflowStatusSucceeded {
			return nil, fmt.Errorf("transcription job finished with status %s", status)
		}

		var result transcriptionOutput
		if err := json.Unmarshal([]byte(aws.ToString(out.Output)), &result); err != nil {
			return nil, fmt.Errorf("failed to decode transcription output: %w", err)
		}
		log.WithField(logger.FieldCount, len(result.Results)).Info("Transcription job completed")
		return result.Results, nil
	}

	return nil, fmt.Errorf("transcription job %s did not finish within %d polls", arn, maxAttempts)
}
