package model

import "time"

// Doctor represents a server that claims tokens for a department.
type Doctor struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:128;not null"`
	DepartmentID string `gorm:"index;size:36;not null"`
	Active       bool   `gorm:"not null;default:true"`
	OnBreak      bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Associations
	Department Department `gorm:"constraint:OnDelete:CASCADE"`
}
