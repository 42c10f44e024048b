// Package httpapi is the JSON management API over the scheduler, dialer and reporting services.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-scheduler/internal/audit"
	"voice-scheduler/internal/auth"
	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/dialer"
	"voice-scheduler/internal/rbac"
	"voice-scheduler/internal/reporting"
	"voice-scheduler/internal/scheduler"
	"voice-scheduler/pkg/logger"
)

// ScheduledCalls is the scheduler surface the API drives.
type ScheduledCalls interface {
	Create(ctx context.Context, in scheduler.CreateInput) (calls.ScheduledCall, error)
	Update(ctx context.Context, id string, in scheduler.UpdateInput) (calls.ScheduledCall, error)
	Pause(ctx context.Context, id string) (calls.ScheduledCall, error)
	Resume(ctx context.Context, id string) (calls.ScheduledCall, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (calls.ScheduledCall, error)
	List(ctx context.Context, status calls.ScheduledCallStatus) ([]calls.ScheduledCall, error)
	PreviewRuns(sc calls.ScheduledCall, n int) []time.Time
	IsArmed(id string) bool
}

// Dialer places ad-hoc calls and retries.
type Dialer interface {
	TriggerCall(ctx context.Context, req dialer.CallRequest, retryOf string) (calls.CallLog, error)
	Retry(ctx context.Context, callLogID string) (calls.CallLog, error)
	SetPublicBaseURL(ctx context.Context, u string) error
	PublicBaseURL() string
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Scheduled ScheduledCalls
	Dialer    Dialer
	CallLogs  calls.CallLogRepository
	Reports   *reporting.Service
	// Audit is optional.
	Audit *audit.Service
}

// Register mounts the management routes on an authenticated group.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	read := rbac.RequireAnyRole(rbac.Readers...)
	write := rbac.RequireAnyRole(rbac.Writers...)
	adminOnly := rbac.RequireAnyRole()

	v1.GET("/me", Me)

	sc := v1.Group("/scheduled-calls")
	{
		sc.GET("", read, h.ListScheduledCalls)
		sc.POST("", write, h.CreateScheduledCall)
		sc.GET("/:id", read, h.GetScheduledCall)
		sc.PATCH("/:id", write, h.UpdateScheduledCall)
		sc.DELETE("/:id", write, h.DeleteScheduledCall)
		sc.POST("/:id/pause", write, h.PauseScheduledCall)
		sc.POST("/:id/resume", write, h.ResumeScheduledCall)
		sc.GET("/:id/calls", read, h.ListCallsForScheduled)
	}

	cl := v1.Group("/calls")
	{
		cl.GET("", read, h.ListCalls)
		cl.POST("", write, h.TriggerCall)
		cl.GET("/:id", read, h.GetCall)
		cl.POST("/:id/retry", write, h.RetryCall)
	}

	v1.GET("/reports/summary", read, h.ReportSummary)

	admin := v1.Group("", adminOnly)
	{
		admin.GET("/settings/callback-url", h.GetCallbackURL)
		admin.PUT("/settings/callback-url", h.SetCallbackURL)
		admin.GET("/audit-events", h.ListAuditEvents)
	}
}

// Me echoes the caller identity.
func Me(c *gin.Context) {
	id, _ := auth.IdentityFrom(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role})
}

// writeError maps service errors to HTTP statuses. Unexpected errors are logged and hidden.
func writeError(c *gin.Context, err error) {
	var (
		cfgErr  *dialer.ConfigurationError
		provErr *dialer.ProviderError
	)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, scheduler.ErrInvalidArgument),
		errors.Is(err, dialer.ErrInvalidDestination),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrInvalidState), errors.Is(err, dialer.ErrNotRetryable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &cfgErr):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "calling not configured", "reason": cfgErr.Reason})
	case errors.As(err, &provErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":       "provider rejected call",
			"code":        provErr.Code,
			"message":     provErr.Message,
			"call_log_id": provErr.CallLogID,
		})
	case errors.Is(err, scheduler.ErrStopped):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler stopped"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h Handlers) record(c *gin.Context, typ audit.EventType, scheduledCallID, callLogID, message string, details any) {
	if h.Audit == nil {
		return
	}
	id, _ := auth.IdentityFrom(c.Request.Context())
	ctx := logger.With(c.Request.Context(), logger.FromGin(c))
	h.Audit.Record(ctx, audit.Actor{UserID: id.UserID, Role: id.Role, IP: c.ClientIP()}, typ, scheduledCallID, callLogID, message, details)
}

// requestCtx carries the request logger into services.
func requestCtx(c *gin.Context) context.Context {
	return logger.With(c.Request.Context(), logger.FromGin(c))
}
