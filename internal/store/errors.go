package store

import "errors"

var (
	ErrTokenNotFound      = errors.New("token not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrNoWaitingTokens    = errors.New("no waiting tokens")
	ErrTicketNumberTaken  = errors.New("ticket number already taken")
	ErrStatusConflict     = errors.New("token status changed concurrently")
)
