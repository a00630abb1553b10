package external

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/google/uuid"
)

// IngestionStatus mirrors the job states the vector-store sync reports.
type IngestionStatus string

const (
	IngestionStatusStarting   IngestionStatus = "STARTING"
	IngestionStatusInProgress IngestionStatus = "IN_PROGRESS"
	IngestionStatusComplete   IngestionStatus = "COMPLETE"
	IngestionStatusFailed     IngestionStatus = "FAILED"
	IngestionStatusStopped    IngestionStatus = "STOPPED"
)

// Terminal reports whether the status will not change again.
func (s IngestionStatus) Terminal() bool {
	switch s {
	case IngestionStatusComplete, IngestionStatusFailed, IngestionStatusStopped:
		return true
	}
	return false
}

// IngestionJob is a point-in-time view of a vector-store sync job.
type IngestionJob struct {
	ID              string
	Status          IngestionStatus
	DocumentsFailed int64
	FailureReasons  []string
}

// IngestionRunner starts and observes vector-store sync jobs against a
// knowledge base data source.
type IngestionRunner interface {
	Start(ctx context.Context, kbID, dsID string) (string, error)
	Get(ctx context.Context, kbID, dsID, jobID string) (*IngestionJob, error)
}

// BedrockAgentClient is the subset of the bedrockagent client the runner uses.
type BedrockAgentClient interface {
	StartIngestionJob(ctx context.Context, params *bedrockagent.StartIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error)
	GetIngestionJob(ctx context.Context, params *bedrockagent.GetIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error)
}

// BedrockIngestionRunner syncs a knowledge base data source via the Bedrock
// agent API.
type BedrockIngestionRunner struct {
	client BedrockAgentClient
}

// NewBedrockIngestionRunner creates an ingestion runner.
func NewBedrockIngestionRunner(client BedrockAgentClient) *BedrockIngestionRunner {
	return &BedrockIngestionRunner{client: client}
}

// Start launches one sync job and returns its ID. The client token makes a
// retried start reuse the in-flight job instead of starting a second one.
func (r *BedrockIngestionRunner) Start(ctx context.Context, kbID, dsID string) (string, error) {
	out, err := r.client.StartIngestionJob(ctx, &bedrockagent.StartIngestionJobInput{
		KnowledgeBaseId: aws.String(kbID),
		DataSourceId:    aws.String(dsID),
		ClientToken:     aws.String(uuid.New().String()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start ingestion job: %w", err)
	}
	if out.IngestionJob == nil || out.IngestionJob.IngestionJobId == nil {
		return "", fmt.Errorf("ingestion job started without an id")
	}
	return aws.ToString(out.IngestionJob.IngestionJobId), nil
}

// Get reports the current state of a sync job, including per-document
// failure counts and raw failure reasons.
func (r *BedrockIngestionRunner) Get(ctx context.Context, kbID, dsID, jobID string) (*IngestionJob, error) {
	out, err := r.client.GetIngestionJob(ctx, &bedrockagent.GetIngestionJobInput{
		KnowledgeBaseId: aws.String(kbID),
		DataSourceId:    aws.String(dsID),
		IngestionJobId:  aws.String(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion job: %w", err)
	}
	if out.IngestionJob == nil {
		return nil, fmt.Errorf("ingestion job %s not found", jobID)
	}

	job := &IngestionJob{
		ID:             jobID,
		Status:         IngestionStatus(out.IngestionJob.Status),
		FailureReasons: out.IngestionJob.FailureReasons,
	}
	if stats := out.IngestionJob.Statistics; stats != nil {
		job.DocumentsFailed = stats.NumberOfDocumentsFailed
	}
	return job, nil
}
