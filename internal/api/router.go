package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"hospital-queue-backend/internal/mw"
	"hospital-queue-backend/internal/queue"
	"hospital-queue-backend/internal/store"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(engine *queue.Engine, s store.Store, webpushOptions *webpush.Options, opts RouterOptions) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(engine, s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	cacheStore := cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Patient-facing token operations.
		api.POST("/tokens", handler.CreateToken)
		api.POST("/tokens/:token_id/cancel", handler.CancelToken)
		api.GET("/patients/:patient_id/status", handler.GetQueueStatus)
		api.GET("/patients/:patient_id/upcoming", handler.GetUpcomingTokens)
		api.GET("/patients/:patient_id/history", handler.GetTokenHistory)

		// Doctor-facing queue operations.
		api.POST("/departments/:dept_id/call-next", handler.CallNext)
		api.POST("/tokens/:token_id/complete", handler.CompleteToken)
		api.POST("/tokens/:token_id/skip", handler.SkipToken)
		api.POST("/tokens/:token_id/no-show", handler.NoShowToken)

		// Read-mostly views, cached briefly.
		api.GET("/departments/:dept_id/preview", caching, handler.PreviewTicketNumber)
		api.GET("/departments/:dept_id/dashboard", caching, handler.GetDashboard)

		// Push subscriptions.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
