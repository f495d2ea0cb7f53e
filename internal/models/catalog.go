package models

import "time"

// TaskType distinguishes tasks always open from tasks only open during an exam.
type TaskType int

const (
	TaskTypeStatic TaskType = iota
	TaskTypeRandom
)

// Group is a study group. Its title is what the external checker knows it by.
type Group struct {
	ID    int    `gorm:"primaryKey" json:"id"`
	Title string `gorm:"size:128;not null;uniqueIndex" json:"title"`
}

// TaskBlock groups tasks under a shared deadline.
type TaskBlock struct {
	ID       int        `gorm:"primaryKey" json:"id"`
	Title    string     `gorm:"size:255;not null" json:"title"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Task is a task definition from the course catalog.
type Task struct {
	ID          int        `gorm:"primaryKey" json:"id"`
	Formulation string     `gorm:"type:text" json:"formulation"`
	Type        TaskType   `gorm:"not null;default:0" json:"type"`
	BlockID     *int       `json:"block_id,omitempty"`
	Block       *TaskBlock `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"block,omitempty"`
}

// IsRandom reports whether the task is only available during an exam.
func (t Task) IsRandom() bool {
	return t.Type == TaskTypeRandom
}

// IsPastDeadline reports whether the task block deadline has passed.
func (t Task) IsPastDeadline(reference time.Time) bool {
	if t.Block == nil || t.Block.Deadline == nil {
		return false
	}
	return reference.After(*t.Block.Deadline)
}

// Variant is a numbered variant of the task list handed to one student.
type Variant struct {
	ID int `gorm:"primaryKey" json:"id"`
}

// FinalSeed holds the exam state of a group.
type FinalSeed struct {
	GroupID   int       `gorm:"primaryKey;autoIncrement:false" json:"group_id"`
	Seed      int64     `gorm:"not null" json:"seed"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalTask is the identity of a submission slot as seen by the checker.
type ExternalTask struct {
	GroupID    int    `json:"group_id"`
	GroupTitle string `json:"group_title"`
	TaskID     int    `json:"task_id"`
	VariantID  int    `json:"variant_id"`
	Active     bool   `json:"active"`
}
