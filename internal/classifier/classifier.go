// Package classifier decides whether chat messages are questions or
// answers by calling the Anthropic Messages API. It is the only package
// that talks to the model; callers get typed verdicts, never raw text.
package classifier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/qawatch/qawatch/internal/types"
)

// DefaultModel is the cost-efficient model used for classification.
// Single-message verdicts are simple enough that a small model holds up;
// QAWATCH_MODEL or the config file can override it.
const DefaultModel = "claude-3-5-haiku-20241022"

const maxVerdictTokens = 100

// QuestionType categorizes how a question presents itself
type QuestionType string

const (
	QuestionDirect      QuestionType = "direct"       // Ends with "?" or equivalent
	QuestionImplicit    QuestionType = "implicit"     // "how do I...", "what is..."
	QuestionHelpRequest QuestionType = "help_request" // "can someone help..."
	QuestionNone        QuestionType = "none"
)

// QuestionVerdict is the typed result of question classification.
// The zero value is the "not classified" verdict.
type QuestionVerdict struct {
	IsQuestion bool         `json:"is_question"`
	Confidence float64      `json:"confidence"`
	Type       QuestionType `json:"question_type"`
}

// AnswerVerdict is the typed result of answer classification.
// The zero value is the "not classified" verdict.
type AnswerVerdict struct {
	IsAnswer   bool                `json:"is_answer"`
	Confidence float64             `json:"confidence"`
	Quality    types.AnswerQuality `json:"answer_quality"`
}

// Classifier scores messages as questions and as answers to questions.
//
// Implementations must degrade, not propagate: when the backend is
// unreachable, rate-limited, or returns garbage, they return the zero
// verdict alongside the error so the caller can treat the message as
// non-matching without the pipeline blocking.
type Classifier interface {
	ClassifyQuestion(ctx context.Context, text string) (QuestionVerdict, error)
	ClassifyAnswer(ctx context.Context, questionText, candidateText, contextText string) (AnswerVerdict, error)
}

// Anthropic is the production Classifier backed by the Anthropic API
type Anthropic struct {
	client         *anthropic.Client
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
}

var _ Classifier = (*Anthropic)(nil)

// Config holds classifier configuration
type Config struct {
	APIKey string      // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string      // Model to use (default: DefaultModel)
	Retry  RetryConfig // Retry configuration (uses defaults if zero)

	// RequestsPerSecond paces outbound API calls. 0 disables pacing.
	// Default: 2.
	RequestsPerSecond float64
}

// New creates an Anthropic-backed classifier
func New(cfg *Config) (*Anthropic, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Anthropic{
		client:         &client,
		model:          model,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		limiter:        limiter,
	}, nil
}

const questionSystemPrompt = `Analyze if this message is a question seeking information or help.

Consider:
- Direct questions (ends with "?")
- Implicit questions ("how do I...", "what is...", "can someone help...")
- Requests for information or assistance
- Troubleshooting requests

Return ONLY a JSON object:
{"is_question": true/false, "confidence": 0.0-1.0, "question_type": "direct/implicit/help_request/none"}`

const answerSystemPrompt = `Analyze if the potential answer addresses the given question.

Consider:
- Direct answers that provide the requested information
- Partial answers that address part of the question
- Helpful responses that move toward a solution
- Context and conversational flow

Return ONLY a JSON object:
{"is_answer": true/false, "confidence": 0.0-1.0, "answer_quality": "direct/partial/helpful/irrelevant"}`

// ClassifyQuestion scores a single message as a question.
// On backend failure it returns the zero verdict and the error.
func (a *Anthropic) ClassifyQuestion(ctx context.Context, text string) (QuestionVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return QuestionVerdict{Type: QuestionNone}, fmt.Errorf("empty text")
	}

	prompt := fmt.Sprintf("%s\n\nMessage: %s", questionSystemPrompt, text)

	responseText, err := a.complete(ctx, "classify_question", prompt)
	if err != nil {
		return QuestionVerdict{Type: QuestionNone}, err
	}

	result := Parse[QuestionVerdict](responseText, "question verdict")
	if !result.Success {
		return QuestionVerdict{Type: QuestionNone},
			fmt.Errorf("failed to parse question verdict: %s (response: %s)", result.Error, truncate(responseText, 200))
	}

	verdict := result.Data
	verdict.Confidence = clampConfidence(verdict.Confidence)
	if !verdict.Type.isValid() {
		verdict.Type = QuestionNone
	}
	return verdict, nil
}

// ClassifyAnswer scores candidateText as an answer to questionText.
// contextText carries recent channel messages and may be empty.
// On backend failure it returns the zero verdict and the error.
func (a *Anthropic) ClassifyAnswer(ctx context.Context, questionText, candidateText, contextText string) (AnswerVerdict, error) {
	if strings.TrimSpace(questionText) == "" || strings.TrimSpace(candidateText) == "" {
		return AnswerVerdict{Quality: types.QualityIrrelevant}, fmt.Errorf("empty text")
	}

	var sb strings.Builder
	sb.WriteString(answerSystemPrompt)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(questionText)
	sb.WriteString("\n\nPotential Answer: ")
	sb.WriteString(candidateText)
	if contextText != "" {
		sb.WriteString("\n\nContext: ")
		sb.WriteString(contextText)
	}

	responseText, err := a.complete(ctx, "classify_answer", sb.String())
	if err != nil {
		return AnswerVerdict{Quality: types.QualityIrrelevant}, err
	}

	result := Parse[AnswerVerdict](responseText, "answer verdict")
	if !result.Success {
		return AnswerVerdict{Quality: types.QualityIrrelevant},
			fmt.Errorf("failed to parse answer verdict: %s (response: %s)", result.Error, truncate(responseText, 200))
	}

	verdict := result.Data
	verdict.Confidence = clampConfidence(verdict.Confidence)
	if !verdict.Quality.IsValid() {
		verdict.Quality = types.QualityIrrelevant
	}
	return verdict, nil
}

// complete runs one prompt through the Messages API with pacing, retry,
// and circuit breaking, and returns the concatenated text blocks.
func (a *Anthropic) complete(ctx context.Context, operation, prompt string) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s canceled while waiting for rate limiter: %w", operation, err)
		}
	}

	var response *anthropic.Message
	err := a.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: maxVerdictTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s returned an empty response", operation)
	}
	return text, nil
}

func (t QuestionType) isValid() bool {
	switch t {
	case QuestionDirect, QuestionImplicit, QuestionHelpRequest, QuestionNone:
		return true
	}
	return false
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
