package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
)

// StructureRequest asks for a structured markdown rendition of one stored
// document.
type StructureRequest struct {
	CourseID string            `json:"course_id"`
	FileURI  string            `json:"file_uri"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StructureResult locates the structured rendition of a document.
type StructureResult struct {
	StructuredURI string `json:"structured_uri"`
}

// DocumentStructurer converts a stored document into a structured markdown
// file next to the original.
type DocumentStructurer interface {
	Structure(ctx context.Context, req StructureRequest) (*StructureResult, error)
}

// SFNDocumentStructurer drives the document structuring state machine and
// waits for its output.
type SFNDocumentStructurer struct {
	client          StepFunctionsClient
	stateMachineARN string
	pollInterval    time.Duration
	pollTimeout     time.Duration
}

// NewSFNDocumentStructurer creates a structurer bound to one state machine.
func NewSFNDocumentStructurer(client StepFunctionsClient, stateMachineARN string, pollInterval, pollTimeout time.Duration) *SFNDocumentStructurer {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Minute
	}
	return &SFNDocumentStructurer{
		client:          client,
		stateMachineARN: stateMachineARN,
		pollInterval:    pollInterval,
		pollTimeout:     pollTimeout,
	}
}

// Structure starts one execution and polls it until the structured document
// exists or the poll budget runs out.
func (s *SFNDocumentStructurer) Structure(ctx context.Context, req StructureRequest) (*StructureResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structuring input: %w", err)
	}

	started, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.stateMachineARN),
		Name:            aws.String(fmt.Sprintf("structure-%s-%s", req.CourseID, uuid.New().String()[:8])),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start structuring job: %w", err)
	}
	arn := aws.ToString(started.ExecutionArn)

	deadline := time.Now().Add(s.pollTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		out, err := s.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
			ExecutionArn: aws.String(arn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to poll structuring job: %w", err)
		}

		status := workflowStatus(out.Status)
		if !status.Terminal() {
			continue
		}
		if status != WorkflowStatusSucceeded {
			return nil, fmt.Errorf("structuring job finished with status %s", status)
		}

		var result StructureResult
		if err := json.Unmarshal([]byte(aws.ToString(out.Output)), &result); err != nil {
			return nil, fmt.Errorf("failed to decode structuring output: %w", err)
		}
		return &result, nil
	}

	return nil, fmt.Errorf("structuring job %s did not finish within %s", arn, s.pollTimeout)
}
