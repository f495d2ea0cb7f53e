package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/events"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

const defaultMaxCodeBytes = 64 * 1024

// SubmissionService is the student entry point of the grader.
type SubmissionService interface {
	Submit(ctx context.Context, key models.SubmissionKey, code, ip string) (dto.SubmissionResponse, error)
	Status(ctx context.Context, key models.SubmissionKey, ranking []int) (dto.TaskStatusResponse, error)
	GroupBoard(ctx context.Context, groupID int) (dto.GroupBoardResponse, error)
	InvalidateBoard(ctx context.Context, groupID int)
}

// SubmissionConfig holds the knobs of the submission entry point.
type SubmissionConfig struct {
	ReadOnly      bool
	MaxCodeBytes  int
	BoardCacheTTL time.Duration
}

type submissionService struct {
	store     repository.Store
	resolver  Resolver
	publisher events.Publisher
	cache     *redis.Client
	config    SubmissionConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewSubmissionService constructs the submission service. cache and publisher may be nil.
func NewSubmissionService(store repository.Store, resolver Resolver, publisher events.Publisher, cache *redis.Client, cfg SubmissionConfig, logger zerolog.Logger) SubmissionService {
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.BoardCacheTTL <= 0 {
		cfg.BoardCacheTTL = 30 * time.Second
	}

	return &submissionService{
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		cache:     cache,
		config:    cfg,
		logger:    logger.With().Str("component", "submission_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/internal/service/submission"),
		now:       time.Now,
	}
}

// Submit queues a solution and moves the slot's status record. Both writes commit together.
func (s *submissionService) Submit(ctx context.Context, key models.SubmissionKey, code, ip string) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.String("submission.key", key.String()),
	))
	defer span.End()

	if s.config.ReadOnly {
		observability.Submissions().WithLabelValues("closed").Inc()
		return dto.SubmissionResponse{}, ErrReadOnly
	}
	if err := s.validateCode(code); err != nil {
		observability.Submissions().WithLabelValues("rejected").Inc()
		return dto.SubmissionResponse{}, err
	}

	resolved, err := s.resolver.ResolveKey(ctx, key)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}
	if !resolved.External.Active || resolved.Task.IsPastDeadline(s.now()) {
		observability.Submissions().WithLabelValues("closed").Inc()
		return dto.SubmissionResponse{}, ErrSubmissionClosed
	}

	var (
		message models.Message
		status  models.TaskStatus
	)
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if message, err = tx.Messages().Submit(ctx, key, code, ip); err != nil {
			return err
		}
		status, err = tx.Statuses().SubmitTask(ctx, key, code, ip)
		return err
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("key", key.String()).Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).Msg("failed to queue submission")
		return dto.SubmissionResponse{}, err
	}

	observability.Submissions().WithLabelValues("accepted").Inc()
	s.logger.Info().
		Str("key", key.String()).
		Uint("message_id", message.ID).
		Str("status", status.Status.String()).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Msg("submission queued")

	if s.publisher != nil {
		s.publisher.Publish(ctx, events.StatusEvent{Key: key, Status: status.Status, Source: "submission"})
	}

	return dto.SubmissionResponse{
		MessageID: message.ID,
		Status:    status.Status,
		Key:       dto.NewSubmissionKey(key),
		QueuedAt:  message.CreatedAt,
	}, nil
}

func (s *submissionService) validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: code is empty", ErrInvalidCode)
	}
	if len(code) > s.config.MaxCodeBytes {
		return fmt.Errorf("%w: code exceeds %d bytes", ErrInvalidCode, s.config.MaxCodeBytes)
	}
	detected := mimetype.Detect([]byte(code))
	if !strings.HasPrefix(detected.String(), "text/") && !detected.Is("application/json") {
		return fmt.Errorf("%w: unsupported content type %s", ErrInvalidCode, detected.String())
	}
	return nil
}

func (s *submissionService) Status(ctx context.Context, key models.SubmissionKey, ranking []int) (dto.TaskStatusResponse, error) {
	resolved, err := s.resolver.ResolveKey(ctx, key)
	if err != nil {
		return dto.TaskStatusResponse{}, err
	}

	record, err := s.store.Statuses().GetTaskStatus(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return dto.NewTaskStatusResponse(key, resolved.External, nil, ranking), nil
	case err != nil:
		return dto.TaskStatusResponse{}, err
	}
	return dto.NewTaskStatusResponse(key, resolved.External, &record, ranking), nil
}

func boardCacheKey(groupID int) string {
	return fmt.Sprintf("grader:board:%d", groupID)
}

func (s *submissionService) GroupBoard(ctx context.Context, groupID int) (dto.GroupBoardResponse, error) {
	cacheKey := boardCacheKey(groupID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var board dto.GroupBoardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &board); unmarshalErr == nil {
				s.logger.Debug().Int("group_id", groupID).Msg("board cache hit")
				return board, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read board cache")
		}
	}

	if _, err := s.store.Catalog().GetGroup(ctx, groupID); err != nil {
		return dto.GroupBoardResponse{}, err
	}
	records, err := s.store.Statuses().GetByGroup(ctx, groupID)
	if err != nil {
		return dto.GroupBoardResponse{}, err
	}
	board := dto.NewGroupBoardResponse(groupID, records)

	if s.cache != nil {
		if payload, err := json.Marshal(board); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.config.BoardCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store board cache")
			}
		}
	}
	return board, nil
}

// InvalidateBoard drops the cached board of a group.
func (s *submissionService) InvalidateBoard(ctx context.Context, groupID int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, boardCacheKey(groupID)).Err(); err != nil {
		s.logger.Warn().Err(err).Int("group_id", groupID).Msg("failed to invalidate board cache")
	}
}
