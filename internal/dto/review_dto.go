package dto

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// RejectRequest carries the teacher's optional explanation of a rejection.
type RejectRequest struct {
	Comment string `json:"comment" validate:"max=4000"`
}

// AchievementsRequest lists the indices of the ranked solution styles a record earned.
type AchievementsRequest struct {
	Indices []int `json:"indices" validate:"max=64,dive,min=0"`
}

// QueueItemResponse is the next message awaiting manual review.
type QueueItemResponse struct {
	MessageID uint                `json:"message_id"`
	Key       SubmissionKey       `json:"key"`
	External  models.ExternalTask `json:"external"`
	Code      string              `json:"code"`
	IP        string              `json:"ip"`
	Status    models.Status       `json:"status"`
	QueuedAt  time.Time           `json:"queued_at"`
}

// ExamResponse describes the exam state of a group.
type ExamResponse struct {
	GroupID int    `json:"group_id"`
	State   string `json:"state"`
	Active  bool   `json:"active"`
	Seed    *int64 `json:"seed,omitempty"`
}

// Exam states.
const (
	ExamStateNotStarted = "not_started"
	ExamStateRunning    = "running"
	ExamStateEnded      = "ended"
)

// NewExamResponse describes a seed. A nil seed means the exam never began.
func NewExamResponse(groupID int, seed *models.FinalSeed) ExamResponse {
	if seed == nil {
		return ExamResponse{GroupID: groupID, State: ExamStateNotStarted}
	}
	value := seed.Seed
	state := ExamStateEnded
	if seed.Active {
		state = ExamStateRunning
	}
	return ExamResponse{GroupID: groupID, State: state, Active: seed.Active, Seed: &value}
}
