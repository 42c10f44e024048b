package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-scheduler/internal/audit"
	"voice-scheduler/internal/reporting"
)

type summaryQuery struct {
	From            time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To              time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	ScheduledCallID string    `form:"scheduled_call_id"`
}

func (h Handlers) ReportSummary(c *gin.Context) {
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	out, err := h.Reports.Overview(requestCtx(c), reporting.CallsSummaryRequest{
		Range:           reporting.TimeRange{From: q.From, To: q.To},
		ScheduledCallID: q.ScheduledCallID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type callbackURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func (h Handlers) GetCallbackURL(c *gin.Context) {
	u := h.Dialer.PublicBaseURL()
	c.JSON(http.StatusOK, gin.H{"url": u, "configured": u != ""})
}

// SetCallbackURL replaces the public base URL used for provider callbacks. Calls already placed
// keep the URLs they were created with.
func (h Handlers) SetCallbackURL(c *gin.Context) {
	var req callbackURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	prev := h.Dialer.PublicBaseURL()
	if err := h.Dialer.SetPublicBaseURL(c.Request.Context(), req.URL); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cur := h.Dialer.PublicBaseURL()
	h.record(c, audit.EventSettingsChanged, "", "", "callback url changed", gin.H{"from": prev, "to": cur})
	c.JSON(http.StatusOK, gin.H{"url": cur, "configured": true})
}

func (h Handlers) ListAuditEvents(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "audit not configured"})
		return
	}
	var q struct {
		Type            string `form:"type"`
		ScheduledCallID string `form:"scheduled_call_id"`
		Limit           int    `form:"limit" binding:"omitempty,min=1,max=500"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	evs, err := h.Audit.List(requestCtx(c), audit.Filter{Type: audit.EventType(q.Type), ScheduledCallID: q.ScheduledCallID, Limit: q.Limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "count": len(evs)})
}
