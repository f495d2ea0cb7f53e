package models

import (
	"fmt"
	"time"
)

// SubmissionKey identifies a submission slot: one task of one variant in one group.
type SubmissionKey struct {
	TaskID    int `json:"task_id"`
	VariantID int `json:"variant_id"`
	GroupID   int `json:"group_id"`
}

func (k SubmissionKey) String() string {
	return fmt.Sprintf("g-%d/v-%d/t-%d", k.GroupID, k.VariantID, k.TaskID)
}

// Message is a queued submission waiting for a verdict.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    int       `gorm:"not null;index:idx_messages_key,priority:1" json:"task_id"`
	VariantID int       `gorm:"not null;index:idx_messages_key,priority:2" json:"variant_id"`
	GroupID   int       `gorm:"not null;index:idx_messages_key,priority:3" json:"group_id"`
	Code      string    `gorm:"type:text;not null" json:"code"`
	IP        string    `gorm:"size:64" json:"ip"`
	Processed bool      `gorm:"not null;default:false;index" json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the submission slot the message belongs to.
func (m Message) Key() SubmissionKey {
	return SubmissionKey{TaskID: m.TaskID, VariantID: m.VariantID, GroupID: m.GroupID}
}

// Check sources recorded alongside every applied verdict.
const (
	CheckSourceWorker = "worker"
	CheckSourceReview = "review"
)

// MessageCheck records a verdict applied to a queued message.
type MessageCheck struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MessageID  uint      `gorm:"not null;index" json:"message_id"`
	Status     Status    `gorm:"not null" json:"status"`
	Output     string    `gorm:"type:text" json:"output"`
	Source     string    `gorm:"size:16;not null" json:"source"`
	ReviewerID *uint     `json:"reviewer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
