package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// maxTransitionAttempts bounds the compare-and-swap retries of a status transition.
const maxTransitionAttempts = 5

// ErrConcurrentUpdate indicates a transition lost every compare-and-swap attempt.
var ErrConcurrentUpdate = errors.New("status record changed concurrently")

// TaskStatusRepository persists the single status record of every submission slot.
type TaskStatusRepository interface {
	SubmitTask(ctx context.Context, key models.SubmissionKey, code, ip string) (models.TaskStatus, error)
	UpdateStatus(ctx context.Context, key models.SubmissionKey, update models.StatusUpdate) (models.TaskStatus, error)
	GetTaskStatus(ctx context.Context, key models.SubmissionKey) (models.TaskStatus, error)
	GetByGroup(ctx context.Context, groupID int) ([]models.TaskStatus, error)
	GetAll(ctx context.Context) ([]models.TaskStatus, error)
	SetAchievements(ctx context.Context, key models.SubmissionKey, indices []int) error
}

// NewTaskStatusRepository constructs the status store.
func NewTaskStatusRepository(db *gorm.DB) TaskStatusRepository {
	return &taskStatusRepository{db: db}
}

type taskStatusRepository struct {
	db *gorm.DB
}

func keyScope(key models.SubmissionKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("task_id = ? AND variant_id = ? AND group_id = ?", key.TaskID, key.VariantID, key.GroupID)
	}
}

func (r *taskStatusRepository) SubmitTask(ctx context.Context, key models.SubmissionKey, code, ip string) (models.TaskStatus, error) {
	return r.UpdateStatus(ctx, key, models.StatusUpdate{Event: models.EventSubmit, Code: code, IP: ip})
}

// UpdateStatus applies the event to the record of the key, creating it when absent.
func (r *taskStatusRepository) UpdateStatus(ctx context.Context, key models.SubmissionKey, update models.StatusUpdate) (models.TaskStatus, error) {
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}

	created, ok, err := r.insertFresh(ctx, key, update)
	if err != nil {
		return models.TaskStatus{}, err
	}
	if ok {
		return created, nil
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := r.GetTaskStatus(ctx, key)
		if err != nil {
			return models.TaskStatus{}, err
		}

		next, err := current.Status.Next(update.Event)
		if err != nil {
			return models.TaskStatus{}, err
		}

		result := r.db.WithContext(ctx).
			Model(&models.TaskStatus{}).
			Scopes(keyScope(key)).
			Where("status = ?", current.Status).
			Updates(transitionChanges(next, update))
		if result.Error != nil {
			return models.TaskStatus{}, translate("update task status", result.Error)
		}
		if result.RowsAffected > 0 {
			return r.GetTaskStatus(ctx, key)
		}
	}

	return models.TaskStatus{}, fmt.Errorf("update task status %s: %w", key, ErrConcurrentUpdate)
}

// insertFresh creates the record when none exists yet. A concurrent insert wins silently.
func (r *taskStatusRepository) insertFresh(ctx context.Context, key models.SubmissionKey, update models.StatusUpdate) (models.TaskStatus, bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TaskStatus{}).Scopes(keyScope(key)).Count(&count).Error; err != nil {
		return models.TaskStatus{}, false, translate("lookup task status", err)
	}
	if count > 0 {
		return models.TaskStatus{}, false, nil
	}

	next, err := models.StatusNotSubmitted.Next(update.Event)
	if err != nil {
		return models.TaskStatus{}, false, err
	}

	record := models.TaskStatus{
		TaskID:    key.TaskID,
		VariantID: key.VariantID,
		GroupID:   key.GroupID,
		Status:    next,
		Code:      update.Code,
		IP:        update.IP,
	}
	if next.IsFailed() {
		record.Output = update.Output
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		return models.TaskStatus{}, false, translate("create task status", result.Error)
	}
	return record, result.RowsAffected > 0, nil
}

func transitionChanges(next models.Status, update models.StatusUpdate) map[string]interface{} {
	changes := map[string]interface{}{"status": next}
	if update.Code != "" {
		changes["code"] = update.Code
	}
	if update.IP != "" {
		changes["ip"] = update.IP
	}

	switch update.Event {
	case models.EventCheckFailed:
		changes["output"] = update.Output
	case models.EventCheckPassed:
		changes["output"] = ""
	case models.EventVerify:
		changes["reviewer_id"] = update.ReviewerID
		changes["reviewed_at"] = update.At
	case models.EventUnverify:
		changes["reviewer_id"] = nil
		changes["reviewed_at"] = nil
	}
	return changes
}

func (r *taskStatusRepository) GetTaskStatus(ctx context.Context, key models.SubmissionKey) (models.TaskStatus, error) {
	var status models.TaskStatus
	if err := r.db.WithContext(ctx).Scopes(keyScope(key)).First(&status).Error; err != nil {
		return models.TaskStatus{}, translate("get task status", err)
	}
	return status, nil
}

func (r *taskStatusRepository) GetByGroup(ctx context.Context, groupID int) ([]models.TaskStatus, error) {
	var statuses []models.TaskStatus
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("variant_id ASC, task_id ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, translate("list group task statuses", err)
	}
	return statuses, nil
}

func (r *taskStatusRepository) GetAll(ctx context.Context) ([]models.TaskStatus, error) {
	var statuses []models.TaskStatus
	err := r.db.WithContext(ctx).
		Order("group_id ASC, variant_id ASC, task_id ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, translate("list task statuses", err)
	}
	return statuses, nil
}

func (r *taskStatusRepository) SetAchievements(ctx context.Context, key models.SubmissionKey, indices []int) error {
	result := r.db.WithContext(ctx).
		Model(&models.TaskStatus{}).
		Scopes(keyScope(key)).
		Update("achievements", datatypes.NewJSONSlice(indices))
	if result.Error != nil {
		return translate("set achievements", result.Error)
	}
	if result.RowsAffected == 0 {
		return translate("set achievements", gorm.ErrRecordNotFound)
	}
	return nil
}
