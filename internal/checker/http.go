package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxVerdictBytes = 1 << 20

// HTTPGateway posts requests to a remote checker service and retries transient failures.
type HTTPGateway struct {
	client *retryablehttp.Client
	url    string
	tracer trace.Tracer
}

// NewHTTPGateway constructs the http driver.
func NewHTTPGateway(url string, retries int, logger zerolog.Logger) *HTTPGateway {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{logger: logger.With().Str("component", "http_checker").Logger()}

	return &HTTPGateway{
		client: client,
		url:    url,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/internal/checker"),
	}
}

func (g *HTTPGateway) Check(parent context.Context, req Request) (Verdict, error) {
	ctx, span := g.tracer.Start(parent, "checker.http.check", trace.WithAttributes(
		attribute.String("checker.group", req.GroupTitle),
		attribute.Int("checker.task", req.TaskID),
		attribute.Int("checker.variant", req.VariantID),
	))
	defer span.End()

	verdict, err := g.post(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}
	span.SetAttributes(attribute.Bool("checker.passed", verdict.Passed))
	return verdict, nil
}

func (g *HTTPGateway) post(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, gatewayError("http", fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, gatewayError("http", fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Verdict{}, gatewayError("http", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxVerdictBytes))
	if err != nil {
		return Verdict{}, gatewayError("http", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{}, gatewayError("http", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(payload), 256)))
	}
	return DecodeVerdict("http", payload)
}

// retryLogger routes retryablehttp's leveled logging into zerolog.
type retryLogger struct {
	logger zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
