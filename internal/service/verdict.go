package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/events"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// Verdict is a decision about one queued message.
type Verdict struct {
	Passed     bool
	Output     string
	Source     string
	ReviewerID *uint
}

// VerdictOutcome reports what applying a verdict changed.
type VerdictOutcome struct {
	// Applied is false when another actor claimed the message first.
	Applied bool
	Status  models.TaskStatus
	// Superseded counts older duplicates of the key marked together with the message.
	Superseded int64
}

// VerdictApplier commits verdicts for the worker and for manual review alike.
type VerdictApplier struct {
	store     repository.Store
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewVerdictApplier constructs the applier. publisher may be nil.
func NewVerdictApplier(store repository.Store, publisher events.Publisher, logger zerolog.Logger) *VerdictApplier {
	return &VerdictApplier{
		store:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "verdict_applier").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Apply claims the message, marks older duplicates of its key, moves the status record
// and records the check in one transaction.
func (a *VerdictApplier) Apply(ctx context.Context, message models.Message, verdict Verdict) (VerdictOutcome, error) {
	key := message.Key()
	event := models.EventCheckFailed
	if verdict.Passed {
		event = models.EventCheckPassed
	}

	var outcome VerdictOutcome
	err := a.store.Transaction(ctx, func(tx repository.Store) error {
		claimed, err := tx.Messages().MarkProcessed(ctx, message.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		superseded, err := tx.Messages().MarkKeyProcessed(ctx, key, message.ID)
		if err != nil {
			return err
		}

		status, err := tx.Statuses().UpdateStatus(ctx, key, models.StatusUpdate{
			Event:  event,
			Output: verdict.Output,
			At:     a.now(),
		})
		if err != nil {
			return err
		}

		if err := tx.Checks().Record(ctx, &models.MessageCheck{
			MessageID:  message.ID,
			Status:     status.Status,
			Output:     verdict.Output,
			Source:     verdict.Source,
			ReviewerID: verdict.ReviewerID,
		}); err != nil {
			return err
		}

		outcome = VerdictOutcome{Applied: true, Status: status, Superseded: superseded}
		return nil
	})
	if err != nil {
		return VerdictOutcome{}, err
	}

	if outcome.Applied {
		a.announce(ctx, outcome.Status, verdict.Source)
	}
	return outcome, nil
}

func (a *VerdictApplier) announce(ctx context.Context, status models.TaskStatus, source string) {
	if a.publisher == nil {
		return
	}
	a.publisher.Publish(ctx, events.StatusEvent{
		Key:    status.Key(),
		Status: status.Status,
		Output: status.ErrorMessage(),
		Source: source,
		At:     a.now(),
	})
}
