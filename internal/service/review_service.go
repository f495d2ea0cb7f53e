package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/events"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// ReviewService is the teacher's path to verdicts and verification.
type ReviewService interface {
	NextPending(ctx context.Context, groupID int) (dto.QueueItemResponse, error)
	Get(ctx context.Context, messageID uint) (models.Message, error)
	Accept(ctx context.Context, messageID uint, groupID int, reviewerID uint) (models.TaskStatus, error)
	Reject(ctx context.Context, messageID uint, groupID int, reviewerID uint, comment string) (models.TaskStatus, error)
	Verify(ctx context.Context, key models.SubmissionKey, reviewerID uint) (models.TaskStatus, error)
	Unverify(ctx context.Context, key models.SubmissionKey, reviewerID uint) (models.TaskStatus, error)
	Pending(ctx context.Context, groupID int) ([]dto.QueueItemResponse, error)
	Checks(ctx context.Context, messageID uint, groupID int) ([]models.MessageCheck, error)
	SetAchievements(ctx context.Context, key models.SubmissionKey, indices []int, reviewerID uint) (models.TaskStatus, error)
	Overview(ctx context.Context) ([]dto.GroupBoardResponse, error)
}

// ReviewConfig mirrors the worker switch of the deployment.
type ReviewConfig struct {
	WorkerDisabled bool
}

type reviewService struct {
	store     repository.Store
	resolver  Resolver
	applier   *VerdictApplier
	publisher events.Publisher
	config    ReviewConfig
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewReviewService constructs the review service.
func NewReviewService(store repository.Store, resolver Resolver, applier *VerdictApplier, publisher events.Publisher, cfg ReviewConfig, logger zerolog.Logger) ReviewService {
	return &reviewService{
		store:     store,
		resolver:  resolver,
		applier:   applier,
		publisher: publisher,
		config:    cfg,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "review_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/internal/service/review"),
	}
}

// NextPending returns the head of the queue when it belongs to the group.
func (s *reviewService) NextPending(ctx context.Context, groupID int) (dto.QueueItemResponse, error) {
	if !s.config.WorkerDisabled {
		return dto.QueueItemResponse{}, ErrReviewDisabled
	}

	message, err := s.store.Messages().NextPending(ctx)
	if err != nil {
		return dto.QueueItemResponse{}, err
	}
	if message.GroupID != groupID {
		return dto.QueueItemResponse{}, fmt.Errorf("no pending message for group %d: %w", groupID, repository.ErrNotFound)
	}

	resolved, err := s.resolver.ResolveKey(ctx, message.Key())
	if err != nil {
		return dto.QueueItemResponse{}, err
	}

	status := models.StatusNotSubmitted
	record, err := s.store.Statuses().GetTaskStatus(ctx, message.Key())
	switch {
	case err == nil:
		status = record.Status
	case !errors.Is(err, repository.ErrNotFound):
		return dto.QueueItemResponse{}, err
	}

	return dto.QueueItemResponse{
		MessageID: message.ID,
		Key:       dto.NewSubmissionKey(message.Key()),
		External:  resolved.External,
		Code:      message.Code,
		IP:        message.IP,
		Status:    status,
		QueuedAt:  message.CreatedAt,
	}, nil
}

func (s *reviewService) Get(ctx context.Context, messageID uint) (models.Message, error) {
	return s.store.Messages().GetByID(ctx, messageID)
}

func (s *reviewService) Accept(ctx context.Context, messageID uint, groupID int, reviewerID uint) (models.TaskStatus, error) {
	return s.decide(ctx, messageID, groupID, reviewerID, Verdict{Passed: true})
}

func (s *reviewService) Reject(ctx context.Context, messageID uint, groupID int, reviewerID uint, comment string) (models.TaskStatus, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(comment))
	return s.decide(ctx, messageID, groupID, reviewerID, Verdict{Passed: false, Output: clean})
}

func (s *reviewService) decide(ctx context.Context, messageID uint, groupID int, reviewerID uint, verdict Verdict) (models.TaskStatus, error) {
	action := "accept"
	if !verdict.Passed {
		action = "reject"
	}
	ctx, span := s.tracer.Start(ctx, "review."+action, trace.WithAttributes(
		attribute.Int64("review.message_id", int64(messageID)),
		attribute.Int("review.group_id", groupID),
	))
	defer span.End()

	if !s.config.WorkerDisabled {
		return models.TaskStatus{}, ErrReviewDisabled
	}

	if err := s.checkReviewer(ctx, reviewerID); err != nil {
		return models.TaskStatus{}, err
	}

	message, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return models.TaskStatus{}, err
	}
	if message.GroupID != groupID {
		return models.TaskStatus{}, ErrGroupMismatch
	}

	verdict.Source = models.CheckSourceReview
	verdict.ReviewerID = &reviewerID
	outcome, err := s.applier.Apply(ctx, message, verdict)
	if err != nil {
		span.RecordError(err)
		return models.TaskStatus{}, err
	}
	if !outcome.Applied {
		return models.TaskStatus{}, ErrMessageProcessed
	}

	observability.Reviews().WithLabelValues(action).Inc()
	s.logger.Info().
		Uint("message_id", messageID).
		Uint("reviewer_id", reviewerID).
		Str("key", message.Key().String()).
		Str("status", outcome.Status.Status.String()).
		Msg("manual verdict applied")
	return outcome.Status, nil
}

func (s *reviewService) Verify(ctx context.Context, key models.SubmissionKey, reviewerID uint) (models.TaskStatus, error) {
	return s.transition(ctx, key, reviewerID, models.EventVerify)
}

func (s *reviewService) Unverify(ctx context.Context, key models.SubmissionKey, reviewerID uint) (models.TaskStatus, error) {
	return s.transition(ctx, key, reviewerID, models.EventUnverify)
}

func (s *reviewService) transition(ctx context.Context, key models.SubmissionKey, reviewerID uint, event models.Event) (models.TaskStatus, error) {
	ctx, span := s.tracer.Start(ctx, "review."+event.String(), trace.WithAttributes(
		attribute.String("review.key", key.String()),
	))
	defer span.End()

	if err := s.checkReviewer(ctx, reviewerID); err != nil {
		return models.TaskStatus{}, err
	}

	status, err := s.store.Statuses().UpdateStatus(ctx, key, models.StatusUpdate{
		Event:      event,
		ReviewerID: &reviewerID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return models.TaskStatus{}, err
	}

	observability.Reviews().WithLabelValues(event.String()).Inc()
	if s.publisher != nil {
		s.publisher.Publish(ctx, events.StatusEvent{Key: key, Status: status.Status, Source: models.CheckSourceReview})
	}
	return status, nil
}

// checkReviewer refuses registered accounts without the teacher flag.
// Accounts unknown to the grader are managed by the identity provider and pass.
func (s *reviewService) checkReviewer(ctx context.Context, reviewerID uint) error {
	account, err := s.store.Catalog().GetStudent(ctx, reviewerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	case !account.Teacher:
		return ErrNotReviewer
	}
	return nil
}

// Pending lists every unprocessed message of a group, oldest first, duplicates included.
func (s *reviewService) Pending(ctx context.Context, groupID int) ([]dto.QueueItemResponse, error) {
	if _, err := s.store.Catalog().GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	messages, err := s.store.Messages().Pending(ctx, repository.MessageFilter{GroupID: &groupID})
	if err != nil {
		return nil, err
	}

	items := make([]dto.QueueItemResponse, 0, len(messages))
	for _, message := range messages {
		item := dto.QueueItemResponse{
			MessageID: message.ID,
			Key:       dto.NewSubmissionKey(message.Key()),
			Code:      message.Code,
			IP:        message.IP,
			Status:    models.StatusNotSubmitted,
			QueuedAt:  message.CreatedAt,
		}
		if resolved, err := s.resolver.ResolveKey(ctx, message.Key()); err == nil {
			item.External = resolved.External
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if record, err := s.store.Statuses().GetTaskStatus(ctx, message.Key()); err == nil {
			item.Status = record.Status
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Checks returns the verdict history of a message.
func (s *reviewService) Checks(ctx context.Context, messageID uint, groupID int) ([]models.MessageCheck, error) {
	message, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.GroupID != groupID {
		return nil, ErrGroupMismatch
	}
	return s.store.Checks().ListByMessage(ctx, messageID)
}

// SetAchievements replaces the earned solution styles of a status record.
func (s *reviewService) SetAchievements(ctx context.Context, key models.SubmissionKey, indices []int, reviewerID uint) (models.TaskStatus, error) {
	if err := s.checkReviewer(ctx, reviewerID); err != nil {
		return models.TaskStatus{}, err
	}
	if err := s.store.Statuses().SetAchievements(ctx, key, indices); err != nil {
		return models.TaskStatus{}, err
	}
	s.logger.Info().Str("key", key.String()).Ints("achievements", indices).Uint("reviewer_id", reviewerID).Msg("achievements updated")
	return s.store.Statuses().GetTaskStatus(ctx, key)
}

// Overview returns the status board of every group, including groups without records.
func (s *reviewService) Overview(ctx context.Context) ([]dto.GroupBoardResponse, error) {
	groups, err := s.store.Catalog().ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Statuses().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	byGroup := make(map[int][]models.TaskStatus, len(groups))
	for _, record := range records {
		byGroup[record.GroupID] = append(byGroup[record.GroupID], record)
	}

	boards := make([]dto.GroupBoardResponse, 0, len(groups))
	for _, group := range groups {
		boards = append(boards, dto.NewGroupBoardResponse(group.ID, byGroup[group.ID]))
	}
	return boards, nil
}
