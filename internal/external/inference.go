package external

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	bartypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// InferenceService produces course-level text from an existing knowledge base.
type InferenceService interface {
	GenerateSummary(ctx context.Context, kbID string) (string, error)
	GenerateSampleQuestions(ctx context.Context, kbID string) ([]string, error)
}

// BedrockRuntimeClient is the subset of the bedrockagentruntime client the
// service uses.
type BedrockRuntimeClient interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

const summaryQuery = "Provide a concise overview of the topics this course covers, " +
	"written for a student deciding whether to enroll."

const summaryPromptTemplate = `You are a teacher describing your own course to prospective students.
Using only the search results below, write a short course description (4-6 sentences).
Wrap the description in <summary_output></summary_output> tags and output nothing else.

$search_results$`

const questionsQuery = "What questions could a student ask to explore the main topics of this course?"

const questionsPromptTemplate = `You are a teacher preparing discussion prompts for your own course.
Using only the search results below, write five questions a student could ask about the course content.
Output one question per line and nothing else.

$search_results$`

// BedrockInferenceService generates summaries and sample questions with
// retrieval-augmented generation over a course knowledge base.
type BedrockInferenceService struct {
	client   BedrockRuntimeClient
	modelARN string
}

// NewBedrockInferenceService creates an inference service bound to one model.
func NewBedrockInferenceService(client BedrockRuntimeClient, modelARN string) *BedrockInferenceService {
	return &BedrockInferenceService{client: client, modelARN: modelARN}
}

func (s *BedrockInferenceService) generate(ctx context.Context, kbID, query, promptTemplate string) (string, error) {
	out, err := s.client.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &bartypes.RetrieveAndGenerateInput{
			Text: aws.String(query),
		},
		RetrieveAndGenerateConfiguration: &bartypes.RetrieveAndGenerateConfiguration{
			Type: bartypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &bartypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(kbID),
				ModelArn:        aws.String(s.modelARN),
				GenerationConfiguration: &bartypes.GenerationConfiguration{
					PromptTemplate: &bartypes.PromptTemplate{
						TextPromptTemplate: aws.String(promptTemplate),
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("retrieve-and-generate failed: %w", err)
	}
	if out.Output == nil || out.Output.Text == nil {
		return "", fmt.Errorf("retrieve-and-generate returned no text")
	}
	return aws.ToString(out.Output.Text), nil
}

// GenerateSummary produces a course description from the knowledge base.
func (s *BedrockInferenceService) GenerateSummary(ctx context.Context, kbID string) (string, error) {
	raw, err := s.generate(ctx, kbID, summaryQuery, summaryPromptTemplate)
	if err != nil {
		return "", err
	}
	summary := ExtractTagged(raw, "summary_output")
	if summary == "" {
		summary = strings.TrimSpace(raw)
	}
	if summary == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return summary, nil
}

// GenerateSampleQuestions produces up to five cleaned sample questions.
func (s *BedrockInferenceService) GenerateSampleQuestions(ctx context.Context, kbID string) ([]string, error) {
	raw, err := s.generate(ctx, kbID, questionsQuery, questionsPromptTemplate)
	if err != nil {
		return nil, err
	}
	questions := CleanQuestions(raw)
	if len(questions) == 0 {
		return nil, fmt.Errorf("model returned no usable questions")
	}
	return questions, nil
}

var (
	htmlTagRe  = regexp.MustCompile(`<[^>]+>`)
	listMarkRe = regexp.MustCompile(`^\s*(?:\d+[.)]\s*|[-*•]\s*)`)
)

// ExtractTagged pulls the text wrapped in <tag></tag> out of a model
// response, returning "" when the tag is missing.
func ExtractTagged(text, tag string) string {
	re := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// CleanQuestions normalizes raw model output into a deduplicated list of at
// most five questions, each ending in a question mark.
func CleanQuestions(raw string) []string {
	if tagged := ExtractTagged(raw, "questions_output"); tagged != "" {
		raw = tagged
	}

	seen := make(map[string]struct{})
	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		q := strings.TrimSpace(htmlTagRe.ReplaceAllString(line, ""))
		q = listMarkRe.ReplaceAllString(q, "")
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		q = strings.TrimRight(q, ".!")
		if !strings.HasSuffix(q, "?") {
			q += "?"
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		questions = append(questions, q)
		if len(questions) == 5 {
			break
		}
	}
	return questions
}
