package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of model evaluation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "evaluation_failures_total",
		Help:      "Number of failed model evaluation requests",
	}, []string{"model"})
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("no choices returned from openai")

// ChatClient is the subset of the openai client used by the evaluator.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig defines configuration options for the OpenAI evaluator.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAIEvaluator grades solutions through the chat completion API.
type OpenAIEvaluator struct {
	client ChatClient
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEvaluator builds an evaluator backed by the official API client.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return NewOpenAIEvaluatorWithClient(openai.NewClientWithConfig(config), cfg), nil
}

// NewOpenAIEvaluatorWithClient builds an evaluator over an existing client.
func NewOpenAIEvaluatorWithClient(client ChatClient, cfg OpenAIConfig) *OpenAIEvaluator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	return &OpenAIEvaluator{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_evaluator").Logger(),
	}
}

// Evaluate sends the solution to the model and returns its JSON answer untouched.
func (e *OpenAIEvaluator) Evaluate(parent context.Context, input EvaluationInput) (EvaluationResult, error) {
	ctx, span := e.tracer.Start(parent, "openai.evaluate", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.Int("task_id", input.TaskID),
	))
	defer span.End()

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	aiDuration.WithLabelValues(e.cfg.Model).Observe(time.Since(start).Seconds())

	if err == nil && len(resp.Choices) == 0 {
		err = ErrEmptyResponse
	}
	if err != nil {
		aiFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationResult{}, fmt.Errorf("openai evaluate: %w", err)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	e.logger.Debug().Int("task_id", input.TaskID).Int("tokens", resp.Usage.TotalTokens).Msg("evaluation received")
	return EvaluationResult{Payload: []byte(content), Model: e.cfg.Model}, nil
}

const systemPrompt = "You grade programming exercises. Decide whether the submitted solution correctly solves the task. " +
	`Respond with a JSON object {"passed": boolean, "detail": string}. Put the reason for a failure in detail.`

func buildUserPrompt(input EvaluationInput) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "# Group %s, task %d, variant %d\n\n", input.GroupTitle, input.TaskID, input.VariantID)
	if input.Formulation != "" {
		builder.WriteString("## Task\n")
		builder.WriteString(input.Formulation)
		builder.WriteString("\n\n")
	}
	builder.WriteString("## Solution\n")
	builder.WriteString(input.Code)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}
