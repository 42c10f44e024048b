package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Twilio sends application/x-www-form-urlencoded webhooks.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
//
// Parsing is adapter-only: no status decisions are made here.

var ErrMissingCallSID = errors.New("telephony: CallSid required")

// ParseStatusCallback reads a call progress callback.
func ParseStatusCallback(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, err
	}
	ev := StatusEvent{
		CallSID:      strings.TrimSpace(r.PostFormValue("CallSid")),
		Status:       strings.TrimSpace(r.PostFormValue("CallStatus")),
		ErrorCode:    strings.TrimSpace(r.PostFormValue("ErrorCode")),
		ErrorMessage: strings.TrimSpace(r.PostFormValue("ErrorMessage")),
		AnsweredBy:   strings.TrimSpace(r.PostFormValue("AnsweredBy")),
		OccurredAt:   parseTimestamp(r.PostFormValue("Timestamp")),
	}
	if ev.CallSID == "" {
		return StatusEvent{}, ErrMissingCallSID
	}
	if raw := strings.TrimSpace(r.PostFormValue("CallDuration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return StatusEvent{}, fmt.Errorf("telephony: invalid CallDuration %q", raw)
		}
		ev.DurationSeconds = &n
	}
	return ev, nil
}

// ParseDetectionCallback reads a legacy asynchronous AMD callback.
func ParseDetectionCallback(r *http.Request) (DetectionEvent, error) {
	if err := r.ParseForm(); err != nil {
		return DetectionEvent{}, err
	}
	ev := DetectionEvent{
		CallSID:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AnsweredBy: strings.TrimSpace(r.PostFormValue("AnsweredBy")),
	}
	if ev.CallSID == "" {
		return DetectionEvent{}, ErrMissingCallSID
	}
	return ev, nil
}

// AnsweredByFromRequest reads AnsweredBy from the query string or the form body.
// The instruction fetch carries it in either place depending on the configured method.
func AnsweredByFromRequest(r *http.Request) string {
	if err := r.ParseForm(); err != nil {
		return strings.TrimSpace(r.URL.Query().Get("AnsweredBy"))
	}
	return strings.TrimSpace(r.FormValue("AnsweredBy"))
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
