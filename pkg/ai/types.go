package ai

import "context"

// EvaluationInput is the solution handed to the model together with the task it solves.
type EvaluationInput struct {
	GroupTitle  string
	TaskID      int
	VariantID   int
	Formulation string
	Code        string
}

// EvaluationResult is the raw JSON object the model answered with.
type EvaluationResult struct {
	Payload []byte
	Model   string
}

// Evaluator asks a language model whether a solution is correct.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error)
}
