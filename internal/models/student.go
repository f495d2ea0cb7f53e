package models

import "time"

// Student is an account that may act as a reviewer of task statuses.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Teacher   bool      `gorm:"not null;default:false" json:"teacher"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All returns every model migrated by the grader.
func All() []interface{} {
	return []interface{}{
		&Student{},
		&Group{},
		&TaskBlock{},
		&Task{},
		&Variant{},
		&FinalSeed{},
		&Message{},
		&MessageCheck{},
		&TaskStatus{},
	}
}
