package telephony

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"voice-scheduler/internal/calls"
)

// OutboundProvider places outbound calls at the telephony provider.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Request/response types stay provider-agnostic apart from the Twilio vocabulary for detection modes.
type OutboundProvider interface {
	Name() string
	// Ready reports whether the provider has the credentials it needs to place calls.
	Ready() error
	CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
}

// Machine detection values as the provider spells them.
const (
	MachineDetectionEnable           = "Enable"
	MachineDetectionDetectMessageEnd = "DetectMessageEnd"
)

// OutboundCallRequest is everything the provider needs to dial one attempt.
type OutboundCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`

	// InstructionURL is fetched by the provider once the call connects (and detection finished).
	InstructionURL    string   `json:"instruction_url"`
	StatusCallbackURL string   `json:"status_callback_url"`
	StatusEvents      []string `json:"status_events"`

	// MachineDetection is empty when detection is disabled. Detection is always synchronous.
	MachineDetection               string `json:"machine_detection,omitempty"`
	MachineDetectionTimeoutSeconds int    `json:"machine_detection_timeout_seconds,omitempty"`

	Options calls.ProviderOptions `json:"options"`
}

type OutboundCallResult struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

// StatusEvent is a normalized call progress callback.
type StatusEvent struct {
	// CallLogID comes from the callback URL; correlation uses CallSID.
	CallLogID string `json:"call_log_id,omitempty"`
	CallSID   string `json:"call_sid"`
	Status    string `json:"status"`

	DurationSeconds *int `json:"duration_seconds,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	AnsweredBy string    `json:"answered_by,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DetectionEvent is a legacy asynchronous answering-machine detection callback.
type DetectionEvent struct {
	CallSID    string `json:"call_sid"`
	AnsweredBy string `json:"answered_by"`
}

// ErrNotConfigured is returned by Ready when credentials are missing.
var ErrNotConfigured = errors.New("telephony: provider credentials not configured")

// APIError is an error response from the provider REST API.
type APIError struct {
	HTTPStatus int    `json:"status"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telephony: provider error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("telephony: provider error (http %d): %s", e.HTTPStatus, e.Message)
}

// ErrorDetails extracts a provider error code and a human readable message from err.
// The code is empty when err did not come from the provider API.
func ErrorDetails(err error) (code, message string) {
	if err == nil {
		return "", ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != 0 {
			code = strconv.Itoa(apiErr.Code)
		}
		return code, apiErr.Message
	}
	return "", err.Error()
}
