package service

import (
	"context"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// ResolvedTask is a submission slot with the catalog rows it was resolved from.
type ResolvedTask struct {
	External models.ExternalTask
	Group    models.Group
	Task     models.Task
	Seed     *models.FinalSeed
}

// Resolver computes the external identity of submission slots.
type Resolver interface {
	Resolve(group models.Group, task models.Task, variantID int, seed *models.FinalSeed) models.ExternalTask
	ResolveKey(ctx context.Context, key models.SubmissionKey) (ResolvedTask, error)
}

type resolver struct {
	catalog  repository.CatalogRepository
	seeds    repository.FinalSeedRepository
	strategy VariantStrategy
}

// NewResolver constructs a resolver. A nil strategy keeps exam tasks on their own identity.
func NewResolver(catalog repository.CatalogRepository, seeds repository.FinalSeedRepository, strategy VariantStrategy) Resolver {
	if strategy == nil {
		strategy = NewSeededPermutation(nil, 1)
	}
	return &resolver{catalog: catalog, seeds: seeds, strategy: strategy}
}

// Resolve is a pure function of its inputs.
func (r *resolver) Resolve(group models.Group, task models.Task, variantID int, seed *models.FinalSeed) models.ExternalTask {
	if !task.IsRandom() {
		return identityTask(group, task, variantID, true)
	}
	if seed == nil {
		return identityTask(group, task, variantID, false)
	}

	title, externalTask, externalVariant := r.strategy.Map(seed.Seed, group.Title, task.ID, variantID)
	return models.ExternalTask{
		GroupID:    group.ID,
		GroupTitle: title,
		TaskID:     externalTask,
		VariantID:  externalVariant,
		Active:     seed.Active,
	}
}

func (r *resolver) ResolveKey(ctx context.Context, key models.SubmissionKey) (ResolvedTask, error) {
	group, err := r.catalog.GetGroup(ctx, key.GroupID)
	if err != nil {
		return ResolvedTask{}, err
	}
	task, err := r.catalog.GetTask(ctx, key.TaskID)
	if err != nil {
		return ResolvedTask{}, err
	}
	if _, err := r.catalog.GetVariant(ctx, key.VariantID); err != nil {
		return ResolvedTask{}, err
	}
	seed, err := r.seeds.Find(ctx, key.GroupID)
	if err != nil {
		return ResolvedTask{}, err
	}

	return ResolvedTask{
		External: r.Resolve(group, task, key.VariantID, seed),
		Group:    group,
		Task:     task,
		Seed:     seed,
	}, nil
}
