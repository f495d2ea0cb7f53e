package service

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// ExamService begins, pauses and resumes the exam of a group.
type ExamService interface {
	Get(ctx context.Context, groupID int) (dto.ExamResponse, error)
	Begin(ctx context.Context, groupID int) (dto.ExamResponse, error)
	End(ctx context.Context, groupID int) (dto.ExamResponse, error)
	Continue(ctx context.Context, groupID int) (dto.ExamResponse, error)
	Toggle(ctx context.Context, groupID int) (dto.ExamResponse, error)
}

type examService struct {
	catalog    repository.CatalogRepository
	seeds      repository.FinalSeedRepository
	finalTasks map[string][]int
	logger     zerolog.Logger
	newSeed    func() int64
}

// NewExamService constructs the exam service over the configured final task sets.
func NewExamService(catalog repository.CatalogRepository, seeds repository.FinalSeedRepository, finalTasks map[string][]int, logger zerolog.Logger) ExamService {
	return &examService{
		catalog:    catalog,
		seeds:      seeds,
		finalTasks: finalTasks,
		logger:     logger.With().Str("component", "exam_service").Logger(),
		newSeed:    randomSeed,
	}
}

func randomSeed() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}

func (s *examService) Get(ctx context.Context, groupID int) (dto.ExamResponse, error) {
	if _, err := s.catalog.GetGroup(ctx, groupID); err != nil {
		return dto.ExamResponse{}, err
	}
	seed, err := s.seeds.Find(ctx, groupID)
	if err != nil {
		return dto.ExamResponse{}, err
	}
	return dto.NewExamResponse(groupID, seed), nil
}

// Begin creates an active seed. A group that already has one keeps it untouched.
func (s *examService) Begin(ctx context.Context, groupID int) (dto.ExamResponse, error) {
	if len(s.finalTasks) == 0 {
		return dto.ExamResponse{}, ErrExamNotConfigured
	}
	if _, err := s.catalog.GetGroup(ctx, groupID); err != nil {
		return dto.ExamResponse{}, err
	}

	created, err := s.seeds.Create(ctx, &models.FinalSeed{GroupID: groupID, Seed: s.newSeed(), Active: true})
	if err != nil {
		return dto.ExamResponse{}, err
	}
	if created {
		s.logger.Info().Int("group_id", groupID).Msg("exam started")
	}

	seed, err := s.seeds.Get(ctx, groupID)
	if err != nil {
		return dto.ExamResponse{}, err
	}
	return dto.NewExamResponse(groupID, &seed), nil
}

func (s *examService) End(ctx context.Context, groupID int) (dto.ExamResponse, error) {
	return s.setActive(ctx, groupID, false)
}

func (s *examService) Continue(ctx context.Context, groupID int) (dto.ExamResponse, error) {
	return s.setActive(ctx, groupID, true)
}

func (s *examService) setActive(ctx context.Context, groupID int, active bool) (dto.ExamResponse, error) {
	seed, err := s.seeds.SetActive(ctx, groupID, active)
	if err != nil {
		return dto.ExamResponse{}, err
	}
	s.logger.Info().Int("group_id", groupID).Bool("active", active).Msg("exam state changed")
	return dto.NewExamResponse(groupID, &seed), nil
}

// Toggle begins a fresh exam, ends a running one or resumes an ended one.
func (s *examService) Toggle(ctx context.Context, groupID int) (dto.ExamResponse, error) {
	seed, err := s.seeds.Find(ctx, groupID)
	if err != nil {
		return dto.ExamResponse{}, err
	}
	switch {
	case seed == nil:
		return s.Begin(ctx, groupID)
	case seed.Active:
		return s.End(ctx, groupID)
	default:
		return s.Continue(ctx, groupID)
	}
}
