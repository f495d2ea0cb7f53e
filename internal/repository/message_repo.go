package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// MessageFilter narrows pending message lookups.
type MessageFilter struct {
	GroupID *int
	Limit   int
}

// MessageRepository is the submission queue: an append-only log of messages.
type MessageRepository interface {
	Submit(ctx context.Context, key models.SubmissionKey, code, ip string) (models.Message, error)
	PendingUnique(ctx context.Context) ([]models.Message, error)
	Pending(ctx context.Context, filter MessageFilter) ([]models.Message, error)
	NextPending(ctx context.Context) (models.Message, error)
	GetByID(ctx context.Context, id uint) (models.Message, error)
	MarkProcessed(ctx context.Context, id uint) (bool, error)
	MarkKeyProcessed(ctx context.Context, key models.SubmissionKey, upToID uint) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// NewMessageRepository constructs the queue repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

type messageRepository struct {
	db *gorm.DB
}

func (r *messageRepository) Submit(ctx context.Context, key models.SubmissionKey, code, ip string) (models.Message, error) {
	message := models.Message{
		TaskID:    key.TaskID,
		VariantID: key.VariantID,
		GroupID:   key.GroupID,
		Code:      code,
		IP:        ip,
	}
	if err := r.db.WithContext(ctx).Create(&message).Error; err != nil {
		return models.Message{}, translate("submit message", err)
	}
	return message, nil
}

// PendingUnique returns the earliest pending message of every key.
func (r *messageRepository) PendingUnique(ctx context.Context) ([]models.Message, error) {
	earliest := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("MIN(id)").
		Where("processed = ?", false).
		Group("task_id, variant_id, group_id")

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("id IN (?)", earliest).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, translate("list unique pending messages", err)
	}
	return messages, nil
}

func (r *messageRepository) Pending(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	query := r.db.WithContext(ctx).Where("processed = ?", false)
	if filter.GroupID != nil {
		query = query.Where("group_id = ?", *filter.GroupID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var messages []models.Message
	if err := query.Order("id ASC").Find(&messages).Error; err != nil {
		return nil, translate("list pending messages", err)
	}
	return messages, nil
}

func (r *messageRepository) NextPending(ctx context.Context) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		First(&message).Error
	if err != nil {
		return models.Message{}, translate("next pending message", err)
	}
	return message, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, translate("get message", err)
	}
	return message, nil
}

// MarkProcessed flips a pending message to processed and reports whether this call did it.
// Marking an already processed message is a no-op.
func (r *messageRepository) MarkProcessed(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND processed = ?", id, false).
		Update("processed", true)
	if result.Error != nil {
		return false, translate("mark message processed", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, translate("mark message processed", err)
	}
	if count == 0 {
		return false, translate("mark message processed", gorm.ErrRecordNotFound)
	}
	return false, nil
}

// MarkKeyProcessed marks every pending message of the key created up to the given message.
func (r *messageRepository) MarkKeyProcessed(ctx context.Context, key models.SubmissionKey, upToID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("task_id = ? AND variant_id = ? AND group_id = ?", key.TaskID, key.VariantID, key.GroupID).
		Where("processed = ? AND id <= ?", false, upToID).
		Update("processed", true)
	if result.Error != nil {
		return 0, translate("mark key processed", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *messageRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("processed = ?", false).Count(&count).Error; err != nil {
		return 0, translate("count pending messages", err)
	}
	return count, nil
}
