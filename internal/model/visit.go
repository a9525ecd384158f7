package model

import "time"

// Visit is the service record written by the consultation workflow.
// A token can only be completed once a visit exists for it.
type Visit struct {
	ID           string `gorm:"primaryKey;size:36"`
	TokenID      string `gorm:"size:36;not null;index:idx_visits_token_dept"`
	DepartmentID string `gorm:"size:36;not null;index:idx_visits_token_dept"`
	DoctorID     string `gorm:"size:36;not null"`
	Notes        string `gorm:"size:2048"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
