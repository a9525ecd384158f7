package model

import "time"

// Patient holds the minimal patient record the queue engine references.
// Profile management lives in another service.
type Patient struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:128;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
