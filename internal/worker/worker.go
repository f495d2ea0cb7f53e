package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grader/internal/checker"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
)

const (
	defaultInterval       = 10 * time.Second
	defaultCheckerTimeout = 60 * time.Second
)

// Config holds the pacing of the worker.
type Config struct {
	Interval       time.Duration
	CheckerTimeout time.Duration
}

// PassReport summarises one pass over the queue.
type PassReport struct {
	Skipped          bool
	Pending          int
	Passed           int
	Failed           int
	Errors           int
	ClaimedElsewhere int
	LeaseLost        bool
}

// Worker drains the submission queue through the checker gateway.
type Worker struct {
	messages repository.MessageRepository
	resolver service.Resolver
	gateway  checker.Gateway
	applier  *service.VerdictApplier
	lease    Lease
	cfg      Config
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// New constructs a worker. lease may be nil when a single instance is guaranteed otherwise.
func New(messages repository.MessageRepository, resolver service.Resolver, gateway checker.Gateway, applier *service.VerdictApplier, lease Lease, cfg Config, logger zerolog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.CheckerTimeout <= 0 {
		cfg.CheckerTimeout = defaultCheckerTimeout
	}

	return &Worker{
		messages: messages,
		resolver: resolver,
		gateway:  checker.WithTimeout(gateway, cfg.CheckerTimeout),
		applier:  applier,
		lease:    lease,
		cfg:      cfg,
		logger:   logger.With().Str("component", "worker").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-grader/internal/worker"),
	}
}

// Run performs passes until ctx is cancelled, waiting Interval after each one.
// A pass that panics is logged and the loop carries on with the next pass.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.cfg.Interval).Dur("checker_timeout", w.cfg.CheckerTimeout).Msg("worker started")
	defer w.release()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return
		case <-timer.C:
		}

		w.guardedPass(ctx)
		timer.Reset(w.cfg.Interval)
	}
}

func (w *Worker) guardedPass(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			observability.WorkerPanics().Inc()
			observability.WorkerPasses().WithLabelValues("failed").Inc()
			w.logger.Error().
				Str("panic", fmt.Sprint(recovered)).
				Bytes("stack", debug.Stack()).
				Msg("worker pass panicked")
		}
	}()

	report := w.RunPass(ctx)
	if report.Pending > 0 {
		w.logger.Info().
			Int("pending", report.Pending).
			Int("passed", report.Passed).
			Int("failed", report.Failed).
			Int("errors", report.Errors).
			Int("claimed_elsewhere", report.ClaimedElsewhere).
			Bool("lease_lost", report.LeaseLost).
			Msg("worker pass completed")
	}
}

// RunPass checks the earliest pending message of every key once.
// Errors never escape: a message that could not be graded stays pending for the next pass.
func (w *Worker) RunPass(ctx context.Context) PassReport {
	ctx, span := w.tracer.Start(ctx, "worker.pass")
	defer span.End()

	if !w.holdLease(ctx) {
		observability.WorkerPasses().WithLabelValues("skipped").Inc()
		span.SetAttributes(attribute.Bool("worker.skipped", true))
		return PassReport{Skipped: true}
	}

	if total, err := w.messages.CountPending(ctx); err == nil {
		observability.PendingMessages().Set(float64(total))
	}

	pending, err := w.messages.PendingUnique(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list pending messages")
		observability.WorkerPasses().WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PassReport{Errors: 1}
	}

	report := PassReport{Pending: len(pending)}
	span.SetAttributes(attribute.Int("worker.pending", len(pending)))

	for _, message := range pending {
		if ctx.Err() != nil {
			break
		}
		// Another instance may have taken over while the previous check ran.
		if !w.holdLease(ctx) {
			w.logger.Warn().Uint("message_id", message.ID).Msg("worker lease lost, ending pass")
			span.SetAttributes(attribute.Bool("worker.lease_lost", true))
			report.LeaseLost = true
			break
		}
		result := w.process(ctx, message)
		observability.WorkerOutcomes().WithLabelValues(result).Inc()
		switch result {
		case resultPassed:
			report.Passed++
		case resultFailed:
			report.Failed++
		case resultClaimed:
			report.ClaimedElsewhere++
		default:
			report.Errors++
		}
	}

	observability.WorkerPasses().WithLabelValues("completed").Inc()
	return report
}

const (
	resultPassed  = "passed"
	resultFailed  = "failed"
	resultError   = "error"
	resultClaimed = "claimed_elsewhere"
)

func (w *Worker) process(ctx context.Context, message models.Message) string {
	key := message.Key()
	logger := w.logger.With().Uint("message_id", message.ID).Str("key", key.String()).Logger()

	ctx, span := w.tracer.Start(ctx, "worker.message", trace.WithAttributes(
		attribute.Int64("message.id", int64(message.ID)),
		attribute.String("message.key", key.String()),
	))
	defer span.End()

	resolved, err := w.resolver.ResolveKey(ctx, key)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve external task")
		span.RecordError(err)
		return resultError
	}

	start := time.Now()
	verdict, err := w.gateway.Check(ctx, checker.Request{
		GroupTitle:  resolved.External.GroupTitle,
		TaskID:      resolved.External.TaskID,
		VariantID:   resolved.External.VariantID,
		Formulation: resolved.Task.Formulation,
		Code:        message.Code,
	})
	observability.CheckerLatency().Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Msg("checker gateway failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resultError
	}

	outcome, err := w.applier.Apply(ctx, message, service.Verdict{
		Passed: verdict.Passed,
		Output: verdict.Detail,
		Source: models.CheckSourceWorker,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply verdict")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resultError
	}
	if !outcome.Applied {
		logger.Warn().Msg("message claimed by another actor")
		return resultClaimed
	}

	logger.Debug().Str("status", outcome.Status.Status.String()).Int64("superseded", outcome.Superseded).Msg("verdict applied")
	if verdict.Passed {
		return resultPassed
	}
	return resultFailed
}

// holdLease takes or renews the lease. Without a lease the worker always holds it.
func (w *Worker) holdLease(ctx context.Context) bool {
	if w.lease == nil {
		return true
	}
	held, err := w.lease.Acquire(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to acquire worker lease")
		return false
	}
	return held
}

func (w *Worker) release() {
	if w.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.lease.Release(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("failed to release worker lease")
	}
}
