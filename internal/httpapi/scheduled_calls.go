package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-scheduler/internal/audit"
	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/scheduler"
)

const previewRuns = 5

type createScheduledCallRequest struct {
	To          string     `json:"to" binding:"required,e164"`
	ContactID   *string    `json:"contact_id"`
	RecordingID string     `json:"recording_id" binding:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`

	RecurrencePattern string `json:"recurrence_pattern" binding:"omitempty,cron"`
	RecurrenceEnabled bool   `json:"recurrence_enabled"`

	DetectionMode           string `json:"detection_mode"`
	DetectionTimeoutSeconds int    `json:"detection_timeout_seconds" binding:"omitempty,min=3,max=59"`
	PostBeepDelaySeconds    int    `json:"post_beep_delay_seconds" binding:"omitempty,min=0,max=60"`

	ProviderOptions *calls.ProviderOptions `json:"provider_options"`
}

type updateScheduledCallRequest struct {
	To          *string    `json:"to" binding:"omitempty,e164"`
	ContactID   *string    `json:"contact_id"`
	RecordingID *string    `json:"recording_id" binding:"omitempty,min=1"`
	ScheduledAt *time.Time `json:"scheduled_at"`

	RecurrencePattern *string `json:"recurrence_pattern" binding:"omitempty,cron"`
	RecurrenceEnabled *bool   `json:"recurrence_enabled"`

	DetectionMode           *string `json:"detection_mode"`
	DetectionTimeoutSeconds *int    `json:"detection_timeout_seconds" binding:"omitempty,min=3,max=59"`
	PostBeepDelaySeconds    *int    `json:"post_beep_delay_seconds" binding:"omitempty,min=0,max=60"`

	ProviderOptions *calls.ProviderOptions `json:"provider_options"`
}

type scheduledCallView struct {
	calls.ScheduledCall
	Armed        bool        `json:"armed"`
	UpcomingRuns []time.Time `json:"upcoming_runs,omitempty"`
}

func (h Handlers) view(sc calls.ScheduledCall) scheduledCallView {
	return scheduledCallView{
		ScheduledCall: sc,
		Armed:         h.Scheduled.IsArmed(sc.ID),
		UpcomingRuns:  h.Scheduled.PreviewRuns(sc, previewRuns),
	}
}

func (h Handlers) ListScheduledCalls(c *gin.Context) {
	status := calls.ScheduledCallStatus(c.Query("status"))
	out, err := h.Scheduled.List(requestCtx(c), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_calls": out, "count": len(out)})
}

func (h Handlers) CreateScheduledCall(c *gin.Context) {
	var req createScheduledCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	in := scheduler.CreateInput{
		To:                      req.To,
		ContactID:               req.ContactID,
		RecordingID:             req.RecordingID,
		RecurrencePattern:       req.RecurrencePattern,
		RecurrenceEnabled:       req.RecurrenceEnabled,
		DetectionMode:           calls.DetectionMode(req.DetectionMode),
		DetectionTimeoutSeconds: req.DetectionTimeoutSeconds,
		PostBeepDelaySeconds:    req.PostBeepDelaySeconds,
	}
	if req.ScheduledAt != nil {
		in.ScheduledAt = req.ScheduledAt.UTC()
	}
	if req.ProviderOptions != nil {
		in.ProviderOptions = *req.ProviderOptions
	}

	sc, err := h.Scheduled.Create(requestCtx(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventScheduledCallCreated, sc.ID, "", "scheduled call created", gin.H{
		"to": sc.To, "scheduled_at": sc.ScheduledAt, "recurrence_pattern": sc.RecurrencePattern,
	})
	c.JSON(http.StatusCreated, h.view(sc))
}

func (h Handlers) GetScheduledCall(c *gin.Context) {
	sc, err := h.Scheduled.Get(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(sc))
}

func (h Handlers) UpdateScheduledCall(c *gin.Context) {
	var req updateScheduledCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	in := scheduler.UpdateInput{
		To:                      req.To,
		ContactID:               req.ContactID,
		RecordingID:             req.RecordingID,
		RecurrencePattern:       req.RecurrencePattern,
		RecurrenceEnabled:       req.RecurrenceEnabled,
		DetectionTimeoutSeconds: req.DetectionTimeoutSeconds,
		PostBeepDelaySeconds:    req.PostBeepDelaySeconds,
		ProviderOptions:         req.ProviderOptions,
	}
	if req.ScheduledAt != nil {
		at := req.ScheduledAt.UTC()
		in.ScheduledAt = &at
	}
	if req.DetectionMode != nil {
		mode := calls.DetectionMode(*req.DetectionMode)
		in.DetectionMode = &mode
	}

	id := c.Param("id")
	sc, err := h.Scheduled.Update(requestCtx(c), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventScheduledCallUpdated, id, "", "scheduled call updated", req)
	c.JSON(http.StatusOK, h.view(sc))
}

func (h Handlers) DeleteScheduledCall(c *gin.Context) {
	id := c.Param("id")
	if err := h.Scheduled.Delete(requestCtx(c), id); err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventScheduledCallDeleted, id, "", "scheduled call deleted", nil)
	c.Status(http.StatusNoContent)
}

func (h Handlers) PauseScheduledCall(c *gin.Context) {
	id := c.Param("id")
	sc, err := h.Scheduled.Pause(requestCtx(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventScheduledCallPaused, id, "", "scheduled call paused", nil)
	c.JSON(http.StatusOK, h.view(sc))
}

func (h Handlers) ResumeScheduledCall(c *gin.Context) {
	id := c.Param("id")
	sc, err := h.Scheduled.Resume(requestCtx(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventScheduledCallResumed, id, "", "scheduled call resumed", nil)
	c.JSON(http.StatusOK, h.view(sc))
}

func (h Handlers) ListCallsForScheduled(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Scheduled.Get(requestCtx(c), id); err != nil {
		writeError(c, err)
		return
	}
	logs, err := h.CallLogs.ListCallLogs(requestCtx(c), calls.CallLogFilter{ScheduledCallID: id, Limit: 100})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": logs, "count": len(logs)})
}
