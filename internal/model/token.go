package model

import "time"

// Token statuses. Transitions between them are enforced by the queue engine;
// the store only ever applies them as conditional updates.
const (
	StatusWaiting   = "WAITING"
	StatusCalled    = "CALLED"
	StatusCompleted = "COMPLETED"
	StatusSkipped   = "SKIPPED"
	StatusCancelled = "CANCELLED"
	StatusNoShow    = "NO_SHOW"
)

// Priority classes and their integer ranks used for ordering.
const (
	PriorityNormal    = "NORMAL"
	PrioritySenior    = "SENIOR"
	PriorityEmergency = "EMERGENCY"
)

// PriorityRank maps a priority class to its comparable rank.
// Unknown classes rank as NORMAL.
func PriorityRank(class string) int {
	switch class {
	case PriorityEmergency:
		return 3
	case PrioritySenior:
		return 2
	default:
		return 1
	}
}

// Token is a patient's placeholder in a department's line for one business day.
// Tokens are never deleted, only moved to a terminal status.
type Token struct {
	ID            string    `gorm:"primaryKey;size:36"`
	TicketNumber  int       `gorm:"not null;uniqueIndex:idx_tokens_dept_day_number"`
	DepartmentID  string    `gorm:"size:36;not null;uniqueIndex:idx_tokens_dept_day_number;index:idx_tokens_dept_day_status"`
	PatientID     string    `gorm:"size:36;not null;index"`
	PriorityClass string    `gorm:"size:16;not null"`
	PriorityRank  int       `gorm:"not null"`
	Status        string    `gorm:"size:16;not null;index:idx_tokens_dept_day_status"`
	BusinessDay   time.Time `gorm:"not null;uniqueIndex:idx_tokens_dept_day_number;index:idx_tokens_dept_day_status"`

	AssignedDoctorID *string `gorm:"size:36;index"`
	CalledAt         *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	Department Department `gorm:"constraint:OnDelete:CASCADE"`
	Patient    Patient    `gorm:"constraint:OnDelete:CASCADE"`
}
