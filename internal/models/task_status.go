package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus is the single status record of a submission slot.
type TaskStatus struct {
	TaskID       int                      `gorm:"primaryKey;autoIncrement:false" json:"task_id"`
	VariantID    int                      `gorm:"primaryKey;autoIncrement:false" json:"variant_id"`
	GroupID      int                      `gorm:"primaryKey;autoIncrement:false;index" json:"group_id"`
	Status       Status                   `gorm:"not null" json:"status"`
	Code         string                   `gorm:"type:text" json:"code"`
	Output       string                   `gorm:"type:text" json:"output"`
	IP           string                   `gorm:"size:64" json:"ip"`
	ReviewerID   *uint                    `json:"reviewer_id,omitempty"`
	Reviewer     *Student                 `gorm:"foreignKey:ReviewerID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	ReviewedAt   *time.Time               `json:"reviewed_at,omitempty"`
	Achievements datatypes.JSONSlice[int] `json:"achievements"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// Key returns the submission slot of the record.
func (s TaskStatus) Key() SubmissionKey {
	return SubmissionKey{TaskID: s.TaskID, VariantID: s.VariantID, GroupID: s.GroupID}
}

// ErrorMessage returns the stored output only while the record is in a failed state.
func (s TaskStatus) ErrorMessage() string {
	if s.Status.IsFailed() {
		return s.Output
	}
	return ""
}

// StatusUpdate describes an explicit transition applied to a status record.
type StatusUpdate struct {
	Event      Event
	Code       string
	IP         string
	Output     string
	ReviewerID *uint
	At         time.Time
}

// Achievement reports whether a ranked solution style was earned by a record.
type Achievement struct {
	Order  int  `json:"order"`
	Count  int  `json:"count"`
	Earned bool `json:"earned"`
}

// MapAchievements evaluates a status record against a ranking supplied by the caller.
// ranking[i] is the number of students who solved the task the i-th most popular way.
func MapAchievements(status *TaskStatus, ranking []int) []Achievement {
	earned := map[int]bool{}
	if status != nil {
		for _, index := range status.Achievements {
			earned[index] = true
		}
	}

	achievements := make([]Achievement, 0, len(ranking))
	for order, count := range ranking {
		achievements = append(achievements, Achievement{
			Order:  order,
			Count:  count,
			Earned: earned[order],
		})
	}
	return achievements
}

// EarnedCount returns how many achievements were earned.
func EarnedCount(achievements []Achievement) int {
	total := 0
	for _, achievement := range achievements {
		if achievement.Earned {
			total++
		}
	}
	return total
}
