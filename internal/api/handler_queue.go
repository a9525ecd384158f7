package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CallNext handles POST /api/departments/:dept_id/call-next.
func (h *Handler) CallNext(c *gin.Context) {
	doctorID := c.GetHeader("X-Doctor-ID")
	if doctorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Doctor-ID header is required"})
		return
	}

	token, err := h.engine.CallNext(c.Request.Context(), c.Param("dept_id"), doctorID)
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// CompleteToken handles POST /api/tokens/:token_id/complete.
func (h *Handler) CompleteToken(c *gin.Context) {
	token, err := h.engine.Complete(c.Request.Context(), c.Param("token_id"))
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// SkipToken handles POST /api/tokens/:token_id/skip.
func (h *Handler) SkipToken(c *gin.Context) {
	token, err := h.engine.Skip(c.Request.Context(), c.Param("token_id"))
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// NoShowToken handles POST /api/tokens/:token_id/no-show.
func (h *Handler) NoShowToken(c *gin.Context) {
	token, err := h.engine.NoShow(c.Request.Context(), c.Param("token_id"))
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// GetDashboard handles GET /api/departments/:dept_id/dashboard.
func (h *Handler) GetDashboard(c *gin.Context) {
	summary, err := h.engine.Dashboard(c.Request.Context(), c.Param("dept_id"), 5)
	if err != nil {
		abortWithEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
