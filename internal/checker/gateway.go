package checker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGateway matches every failure to obtain a verdict from a checker.
var ErrGateway = errors.New("checker gateway failure")

// Request is the external identity of a submission together with its code.
type Request struct {
	GroupTitle  string `json:"group"`
	TaskID      int    `json:"task"`
	VariantID   int    `json:"variant"`
	Formulation string `json:"formulation,omitempty"`
	Code        string `json:"code"`
}

// Verdict is the checker's answer. Detail explains a failure.
type Verdict struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Gateway obtains verdicts from an external checker.
type Gateway interface {
	Check(ctx context.Context, req Request) (Verdict, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req Request) (Verdict, error)

// Check implements Gateway.
func (f GatewayFunc) Check(ctx context.Context, req Request) (Verdict, error) {
	return f(ctx, req)
}

// GatewayError carries the driver that failed and the underlying cause.
type GatewayError struct {
	Driver string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s checker: %v", e.Driver, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is makes every GatewayError match ErrGateway.
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

func gatewayError(driver string, err error) error {
	var existing *GatewayError
	if errors.As(err, &existing) {
		return err
	}
	return &GatewayError{Driver: driver, Err: err}
}

// WithTimeout bounds every check. A driver that ignores cancellation is abandoned on expiry.
func WithTimeout(gateway Gateway, timeout time.Duration) Gateway {
	if timeout <= 0 {
		return gateway
	}
	return &timeoutGateway{next: gateway, timeout: timeout}
}

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

type checkOutcome struct {
	verdict Verdict
	err     error
}

func (g *timeoutGateway) Check(parent context.Context, req Request) (Verdict, error) {
	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	done := make(chan checkOutcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- checkOutcome{err: gatewayError("panic", fmt.Errorf("checker panicked: %v", recovered))}
			}
		}()
		verdict, err := g.next.Check(ctx, req)
		done <- checkOutcome{verdict: verdict, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome.verdict, outcome.err
	case <-ctx.Done():
		return Verdict{}, gatewayError("timeout", fmt.Errorf("no verdict within %s: %w", g.timeout, ctx.Err()))
	}
}
