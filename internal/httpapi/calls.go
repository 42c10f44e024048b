package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-scheduler/internal/audit"
	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/dialer"
)

type triggerCallRequest struct {
	To          string  `json:"to" binding:"required,e164"`
	ContactID   *string `json:"contact_id"`
	RecordingID string  `json:"recording_id" binding:"required"`

	DetectionMode           string `json:"detection_mode"`
	DetectionTimeoutSeconds int    `json:"detection_timeout_seconds" binding:"omitempty,min=3,max=59"`

	ProviderOptions *calls.ProviderOptions `json:"provider_options"`
}

type listCallsQuery struct {
	Status          string    `form:"status"`
	ScheduledCallID string    `form:"scheduled_call_id"`
	From            time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To              time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit           int       `form:"limit" binding:"omitempty,min=1,max=500"`
}

// TriggerCall dials immediately, outside any schedule.
func (h Handlers) TriggerCall(c *gin.Context) {
	var req triggerCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	cr := dialer.CallRequest{
		ContactID:               req.ContactID,
		RecordingID:             req.RecordingID,
		To:                      req.To,
		DetectionTimeoutSeconds: req.DetectionTimeoutSeconds,
	}
	if req.DetectionMode != "" {
		mode, ok := calls.ParseDetectionMode(req.DetectionMode)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown detection_mode"})
			return
		}
		cr.DetectionMode = mode
	}
	if req.ProviderOptions != nil {
		cr.ProviderOptions = *req.ProviderOptions
	}

	l, err := h.Dialer.TriggerCall(requestCtx(c), cr, "")
	if l.ID != "" {
		h.record(c, audit.EventCallTriggered, "", l.ID, "ad-hoc call triggered", gin.H{"to": l.To, "status": l.Status})
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) RetryCall(c *gin.Context) {
	id := c.Param("id")
	l, err := h.Dialer.Retry(requestCtx(c), id)
	if l.ID != "" {
		h.record(c, audit.EventCallRetried, "", l.ID, "call retried", gin.H{"retry_of": id})
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) GetCall(c *gin.Context) {
	l, err := h.CallLogs.GetCallLog(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) ListCalls(c *gin.Context) {
	var q listCallsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	f := calls.CallLogFilter{ScheduledCallID: q.ScheduledCallID, From: q.From, To: q.To, Limit: q.Limit}
	if f.Limit == 0 {
		f.Limit = 100
	}
	if q.Status != "" {
		st, ok := calls.NormalizeCallStatus(q.Status)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		f.Status = st
	}
	logs, err := h.CallLogs.ListCallLogs(requestCtx(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": logs, "count": len(logs)})
}
