package dto

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// SubmissionRequest is the student payload for a new solution.
type SubmissionRequest struct {
	Code string `json:"code" validate:"required"`
}

// SubmissionResponse acknowledges a queued solution.
type SubmissionResponse struct {
	MessageID uint          `json:"message_id"`
	Status    models.Status `json:"status"`
	Key       SubmissionKey `json:"key"`
	QueuedAt  time.Time     `json:"queued_at"`
}

// SubmissionKey echoes the slot of a submission.
type SubmissionKey struct {
	GroupID   int `json:"group_id"`
	VariantID int `json:"variant_id"`
	TaskID    int `json:"task_id"`
}

// StatusQuery carries the optional achievement ranking of a status view.
type StatusQuery struct {
	Ranking string `query:"ranking" validate:"omitempty,max=256"`
}

// TaskStatusResponse is the view of one submission slot.
type TaskStatusResponse struct {
	Key          SubmissionKey        `json:"key"`
	External     models.ExternalTask  `json:"external"`
	Status       models.Status        `json:"status"`
	Error        string               `json:"error,omitempty"`
	Code         string               `json:"code,omitempty"`
	ReviewerID   *uint                `json:"reviewer_id,omitempty"`
	ReviewedAt   *time.Time           `json:"reviewed_at,omitempty"`
	Achievements []models.Achievement `json:"achievements"`
	Earned       int                  `json:"earned"`
	Awaiting     bool                 `json:"awaiting_check"`
	CanVerify    bool                 `json:"can_verify"`
	CanUnverify  bool                 `json:"can_unverify"`
	UpdatedAt    *time.Time           `json:"updated_at,omitempty"`
}

// BoardEntry is one record on a group status board.
type BoardEntry struct {
	Key       SubmissionKey `json:"key"`
	Status    models.Status `json:"status"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// GroupBoardResponse lists every status record of a group.
type GroupBoardResponse struct {
	GroupID int          `json:"group_id"`
	Entries []BoardEntry `json:"entries"`
}

// NewSubmissionKey converts a model key.
func NewSubmissionKey(key models.SubmissionKey) SubmissionKey {
	return SubmissionKey{GroupID: key.GroupID, VariantID: key.VariantID, TaskID: key.TaskID}
}

// NewTaskStatusResponse builds the view of a slot. A nil record means nothing was submitted yet.
func NewTaskStatusResponse(key models.SubmissionKey, external models.ExternalTask, record *models.TaskStatus, ranking []int) TaskStatusResponse {
	response := TaskStatusResponse{
		Key:          NewSubmissionKey(key),
		External:     external,
		Status:       models.StatusNotSubmitted,
		Achievements: models.MapAchievements(record, ranking),
	}
	response.Earned = models.EarnedCount(response.Achievements)
	if record == nil {
		return response
	}

	updatedAt := record.UpdatedAt
	response.Status = record.Status
	response.Error = record.ErrorMessage()
	response.Code = record.Code
	response.ReviewerID = record.ReviewerID
	response.ReviewedAt = record.ReviewedAt
	response.Awaiting = record.Status.IsAwaitingCheck()
	response.CanVerify = record.Status.IsChecked()
	response.CanUnverify = record.Status.IsVerified()
	response.UpdatedAt = &updatedAt
	return response
}

// NewGroupBoardResponse builds the board of a group.
func NewGroupBoardResponse(groupID int, records []models.TaskStatus) GroupBoardResponse {
	entries := make([]BoardEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, NewBoardEntry(record))
	}
	return GroupBoardResponse{GroupID: groupID, Entries: entries}
}

// NewBoardEntry converts a single status record.
func NewBoardEntry(record models.TaskStatus) BoardEntry {
	return BoardEntry{
		Key:       NewSubmissionKey(record.Key()),
		Status:    record.Status,
		Error:     record.ErrorMessage(),
		UpdatedAt: record.UpdatedAt,
	}
}
