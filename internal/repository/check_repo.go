package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// CheckRepository keeps the audit trail of verdicts applied to messages.
type CheckRepository interface {
	Record(ctx context.Context, check *models.MessageCheck) error
	ListByMessage(ctx context.Context, messageID uint) ([]models.MessageCheck, error)
}

// NewCheckRepository constructs the verdict audit repository.
func NewCheckRepository(db *gorm.DB) CheckRepository {
	return &checkRepository{db: db}
}

type checkRepository struct {
	db *gorm.DB
}

func (r *checkRepository) Record(ctx context.Context, check *models.MessageCheck) error {
	if err := r.db.WithContext(ctx).Create(check).Error; err != nil {
		return translate("record message check", err)
	}
	return nil
}

func (r *checkRepository) ListByMessage(ctx context.Context, messageID uint) ([]models.MessageCheck, error) {
	var checks []models.MessageCheck
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&checks).Error
	if err != nil {
		return nil, translate("list message checks", err)
	}
	return checks, nil
}
