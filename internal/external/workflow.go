package external

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/google/uuid"
)

// WorkflowInput is the payload handed to the knowledge-base build workflow.
type WorkflowInput struct {
	CourseID     string `json:"course_id"`
	RegionName   string `json:"region_name"`
	RegionBucket string `json:"region_bucket"`
}

// WorkflowOutput is the result a successful build workflow produces.
type WorkflowOutput struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	DataSourceID    string `json:"data_source_id"`
}

// WorkflowStatus mirrors the execution states the workflow engine reports.
type WorkflowStatus string

const (
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusSucceeded WorkflowStatus = "SUCCEEDED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusTimedOut  WorkflowStatus = "TIMED_OUT"
	WorkflowStatusAborted   WorkflowStatus = "ABORTED"
)

// Terminal reports whether the status will not change again.
func (s WorkflowStatus) Terminal() bool {
	return s != WorkflowStatusRunning && s != ""
}

// WorkflowExecution is a point-in-time view of a running or finished
// workflow execution.
type WorkflowExecution struct {
	Status WorkflowStatus
	Output *WorkflowOutput
}

// WorkflowExecutor starts and observes knowledge-base build workflows.
type WorkflowExecutor interface {
	Start(ctx context.Context, input WorkflowInput) (string, error)
	Describe(ctx context.Context, executionARN string) (*WorkflowExecution, error)
}

// StepFunctionsClient is the subset of the sfn client the executors use.
type StepFunctionsClient interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
}

// SFNWorkflowExecutor runs the build workflow on AWS Step Functions.
type SFNWorkflowExecutor struct {
	client          StepFunctionsClient
	stateMachineARN string
}

// NewSFNWorkflowExecutor creates a workflow executor bound to one state machine.
func NewSFNWorkflowExecutor(client StepFunctionsClient, stateMachineARN string) *SFNWorkflowExecutor {
	return &SFNWorkflowExecutor{client: client, stateMachineARN: stateMachineARN}
}

// Start launches one execution and returns its ARN.
func (e *SFNWorkflowExecutor) Start(ctx context.Context, input WorkflowInput) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow input: %w", err)
	}

	out, err := e.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(e.stateMachineARN),
		Name:            aws.String(fmt.Sprintf("kb-build-%s-%s", input.CourseID, uuid.New().String()[:8])),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start workflow execution: %w", err)
	}
	return aws.ToString(out.ExecutionArn), nil
}

// Describe reports the current state of an execution. The workflow output is
// decoded only once the execution has succeeded.
func (e *SFNWorkflowExecutor) Describe(ctx context.Context, executionARN string) (*WorkflowExecution, error) {
	out, err := e.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(executionARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe workflow execution: %w", err)
	}

	exec := &WorkflowExecution{Status: workflowStatus(out.Status)}
	if exec.Status == WorkflowStatusSucceeded && out.Output != nil {
		var output WorkflowOutput
		if err := json.Unmarshal([]byte(aws.ToString(out.Output)), &output); err != nil {
			return nil, fmt.Errorf("failed to decode workflow output: %w", err)
		}
		exec.Output = &output
	}
	return exec, nil
}

func workflowStatus(s sfntypes.ExecutionStatus) WorkflowStatus {
	switch s {
	case sfntypes.ExecutionStatusRunning:
		return WorkflowStatusRunning
	case sfntypes.ExecutionStatusSucceeded:
		return WorkflowStatusSucceeded
	case sfntypes.ExecutionStatusFailed:
		return WorkflowStatusFailed
	case sfntypes.ExecutionStatusTimedOut:
		return WorkflowStatusTimedOut
	case sfntypes.ExecutionStatusAborted:
		return WorkflowStatusAborted
	default:
		return WorkflowStatus(s)
	}
}
