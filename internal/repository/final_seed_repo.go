package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// FinalSeedRepository stores the exam state of groups.
type FinalSeedRepository interface {
	Get(ctx context.Context, groupID int) (models.FinalSeed, error)
	Find(ctx context.Context, groupID int) (*models.FinalSeed, error)
	Create(ctx context.Context, seed *models.FinalSeed) (bool, error)
	SetActive(ctx context.Context, groupID int, active bool) (models.FinalSeed, error)
}

// NewFinalSeedRepository constructs the exam seed repository.
func NewFinalSeedRepository(db *gorm.DB) FinalSeedRepository {
	return &finalSeedRepository{db: db}
}

type finalSeedRepository struct {
	db *gorm.DB
}

func (r *finalSeedRepository) Get(ctx context.Context, groupID int) (models.FinalSeed, error) {
	var seed models.FinalSeed
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&seed).Error; err != nil {
		return models.FinalSeed{}, translate("get final seed", err)
	}
	return seed, nil
}

// Find is Get with a nil result instead of ErrNotFound.
func (r *finalSeedRepository) Find(ctx context.Context, groupID int) (*models.FinalSeed, error) {
	var seeds []models.FinalSeed
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).Limit(1).Find(&seeds).Error; err != nil {
		return nil, translate("find final seed", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	return &seeds[0], nil
}

// Create inserts the seed unless the group already has one and reports whether it did.
func (r *finalSeedRepository) Create(ctx context.Context, seed *models.FinalSeed) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(seed)
	if result.Error != nil {
		return false, translate("create final seed", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *finalSeedRepository) SetActive(ctx context.Context, groupID int, active bool) (models.FinalSeed, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FinalSeed{}).
		Where("group_id = ?", groupID).
		Update("active", active)
	if result.Error != nil {
		return models.FinalSeed{}, translate("set final seed state", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.FinalSeed{}, translate("set final seed state", gorm.ErrRecordNotFound)
	}
	return r.Get(ctx, groupID)
}
