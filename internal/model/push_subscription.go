package model

import "time"

// PushSubscription holds a browser push subscription. A subscription is
// addressed either by patient (position updates) or by department
// (waiting-room display boards).
type PushSubscription struct {
	Endpoint     string `gorm:"primaryKey"`
	P256DH       string `gorm:"column:p256dh;not null"`
	Auth         string `gorm:"not null"`
	PatientID    string `gorm:"size:36;index"`
	DepartmentID string `gorm:"size:36;index"`
	CreatedAt    time.Time
}
