package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hospital-queue-backend/internal/queue"
)

type createTokenRequest struct {
	PatientID     string    `json:"patient_id" binding:"required"`
	DepartmentID  string    `json:"department_id" binding:"required"`
	Priority      string    `json:"priority"`
	AppointmentAt time.Time `json:"appointment_at" binding:"required"`
}

// CreateToken handles POST /api/tokens.
func (h *Handler) CreateToken(c *gin.Context) {
	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.engine.CreateToken(c.Request.Context(), queue.CreateTokenInput{
		PatientID:         req.PatientID,
		DepartmentID:      req.DepartmentID,
		RequestedPriority: req.Priority,
		RequesterRole:     requesterRole(c),
		AppointmentAt:     req.AppointmentAt,
	})
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

// PreviewTicketNumber handles GET /api/departments/:dept_id/preview.
func (h *Handler) PreviewTicketNumber(c *gin.Context) {
	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'at' timestamp, use RFC3339"})
			return
		}
		at = parsed
	}

	next, err := h.engine.PreviewTicketNumber(c.Request.Context(), c.Param("dept_id"), at)
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next_ticket_number": next})
}

// CancelToken handles POST /api/tokens/:token_id/cancel.
func (h *Handler) CancelToken(c *gin.Context) {
	token, err := h.engine.Cancel(c.Request.Context(), c.Param("token_id"), queue.Requester{
		PatientID: c.GetHeader("X-Patient-ID"),
		Role:      requesterRole(c),
	})
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// GetQueueStatus handles GET /api/patients/:patient_id/status.
func (h *Handler) GetQueueStatus(c *gin.Context) {
	status, err := h.engine.PatientQueueStatus(c.Request.Context(), c.Param("patient_id"), time.Now())
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetUpcomingTokens handles GET /api/patients/:patient_id/upcoming.
func (h *Handler) GetUpcomingTokens(c *gin.Context) {
	tokens, err := h.engine.UpcomingTokens(c.Request.Context(), c.Param("patient_id"))
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// GetTokenHistory handles GET /api/patients/:patient_id/history.
func (h *Handler) GetTokenHistory(c *gin.Context) {
	tokens, err := h.engine.TokenHistory(c.Request.Context(), c.Param("patient_id"), 50)
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// requesterRole reads the caller's role header. Authentication happens
// upstream; an absent header means an ordinary patient.
func requesterRole(c *gin.Context) string {
	role := c.GetHeader("X-Role")
	if role == "" {
		return queue.RolePatient
	}
	return role
}
