package queue

import "errors"

// Engine error kinds. Handlers map these onto HTTP statuses; the distinction
// between "not allowed" and "nothing waiting" matters to the UI.
var (
	ErrDepartmentClosed        = errors.New("department is not accepting tokens")
	ErrPastDateRejected        = errors.New("business day is in the past")
	ErrTooFarAhead             = errors.New("business day is beyond the booking horizon")
	ErrDuplicateActiveToken    = errors.New("patient already holds an active token for this day")
	ErrAllocationFailed        = errors.New("ticket number allocation failed after retries")
	ErrServerUnavailable       = errors.New("doctor is not available")
	ErrServerAlreadyBusy       = errors.New("doctor already has a called token")
	ErrNotAssignedToDepartment = errors.New("doctor is not assigned to this department")
	ErrNoWaitingTokens         = errors.New("no waiting tokens")
	ErrInvalidTransition       = errors.New("invalid token status transition")
	ErrVisitRequired           = errors.New("a visit record is required before completing")
	ErrNotAuthorized           = errors.New("requester may not act on this token")
	ErrTokenNotFound           = errors.New("token not found")
)
