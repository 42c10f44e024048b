package telephony

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-scheduler/pkg/logger"
)

// ErrUnknownCallLog is returned by a CallEventSink when an instruction fetch names a call
// log that does not exist.
var ErrUnknownCallLog = errors.New("telephony: unknown call log")

// CallEventSink receives provider callbacks once they are converted to internal types.
type CallEventSink interface {
	HandleStatus(ctx context.Context, ev StatusEvent) error
	HandleInstructionFetch(ctx context.Context, callLogID, answeredBy string) (string, error)
	HandleDetection(ctx context.Context, callSID, answeredBy string) error
}

// WebhookHandler converts Twilio webhooks to internal types, delegates to the sink and
// writes the response the provider expects.
//
// No business logic here.
type WebhookHandler struct {
	Sink CallEventSink
}

// Register mounts the webhook routes on g. mw runs before every handler (signature checks).
func (h WebhookHandler) Register(g *gin.RouterGroup, mw ...gin.HandlerFunc) {
	callRoutes := g.Group("/calls/:id", mw...)
	callRoutes.POST("/status", h.Status)
	callRoutes.GET("/twiml", h.Instructions)
	callRoutes.POST("/twiml", h.Instructions)
	g.POST("/amd", append(append([]gin.HandlerFunc{}, mw...), h.Detection)...)
}

func (h WebhookHandler) Status(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call events not configured"})
		return
	}

	ev, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	ev.CallLogID = c.Param("id")

	if err := h.Sink.HandleStatus(logger.With(c.Request.Context(), log), ev); err != nil {
		log.Error("status callback failed", "call_sid", ev.CallSID, "status", ev.Status, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status update failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Instructions answers the provider's instruction fetch. It always returns a valid document;
// when the call cannot be resolved the call is hung up.
func (h WebhookHandler) Instructions(c *gin.Context) {
	log := logger.FromGin(c)
	callLogID := c.Param("id")
	answeredBy := AnsweredByFromRequest(c.Request)

	doc := ""
	if h.Sink == nil {
		log.Error("instruction fetch without call event sink", "call_log_id", callLogID)
	} else {
		var err error
		doc, err = h.Sink.HandleInstructionFetch(logger.With(c.Request.Context(), log), callLogID, answeredBy)
		switch {
		case errors.Is(err, ErrUnknownCallLog):
			log.Warn("instruction fetch for unknown call log", "call_log_id", callLogID)
			doc = ""
		case err != nil:
			log.Error("instruction fetch failed", "call_log_id", callLogID, "err", err)
			doc = ""
		}
	}
	if doc == "" {
		doc = HangupDocument()
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}

// Detection handles the legacy asynchronous AMD callback.
func (h WebhookHandler) Detection(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call events not configured"})
		return
	}
	ev, err := ParseDetectionCallback(c.Request)
	if err != nil {
		log.Warn("twilio amd callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if err := h.Sink.HandleDetection(logger.With(c.Request.Context(), log), ev.CallSID, ev.AnsweredBy); err != nil {
		log.Error("amd callback failed", "call_sid", ev.CallSID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "detection update failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
