package model

import "time"

// Department represents a hospital department that runs its own token line.
type Department struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"size:128;not null"`
	Code        string `gorm:"uniqueIndex;size:16;not null"`
	Open        bool   `gorm:"not null;default:true"`
	SlotMinutes int    // 0 means use the configured default
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Doctors []Doctor `gorm:"foreignKey:DepartmentID"`
}
