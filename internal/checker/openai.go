package checker

import (
	"context"

	"github.com/noah-isme/gema-grader/pkg/ai"
)

// OpenAIGateway asks a language model for the verdict.
type OpenAIGateway struct {
	evaluator ai.Evaluator
}

// NewOpenAIGateway constructs the openai driver.
func NewOpenAIGateway(evaluator ai.Evaluator) *OpenAIGateway {
	return &OpenAIGateway{evaluator: evaluator}
}

func (g *OpenAIGateway) Check(ctx context.Context, req Request) (Verdict, error) {
	result, err := g.evaluator.Evaluate(ctx, ai.EvaluationInput{
		GroupTitle:  req.GroupTitle,
		TaskID:      req.TaskID,
		VariantID:   req.VariantID,
		Formulation: req.Formulation,
		Code:        req.Code,
	})
	if err != nil {
		return Verdict{}, gatewayError("openai", err)
	}
	return DecodeVerdict("openai", result.Payload)
}
