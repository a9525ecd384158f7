package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"hospital-queue-backend/internal/queue"
	"hospital-queue-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *queue.Engine
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(engine *queue.Engine, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		engine:  engine,
		store:   s,
		webpush: webpushOptions,
	}
}

// abortWithEngineError maps an engine error kind onto an HTTP response. The
// split between 403/404/409/422 lets the UI distinguish "not allowed" from
// "nothing waiting".
func abortWithEngineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, queue.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrNoWaitingTokens):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrNotAuthorized),
		errors.Is(err, queue.ErrNotAssignedToDepartment):
		status = http.StatusForbidden
	case errors.Is(err, queue.ErrDepartmentClosed),
		errors.Is(err, queue.ErrServerUnavailable),
		errors.Is(err, queue.ErrServerAlreadyBusy),
		errors.Is(err, queue.ErrDuplicateActiveToken),
		errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, queue.ErrVisitRequired):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrPastDateRejected),
		errors.Is(err, queue.ErrTooFarAhead):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrAllocationFailed):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
