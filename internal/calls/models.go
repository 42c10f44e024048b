package calls

import (
	"strings"
	"time"
)

// ScheduledCall is the durable definition of when and how an outbound call is placed.
//
// Registry invariant: the scheduler holds an armed job for a ScheduledCall iff Status == pending.
// in_progress is a transient marker held only while a firing is executing.
//
// Recurring calls (RecurrenceEnabled) never reach completed; they cycle pending <-> in_progress
// with NextRunAt advancing. One-shot calls end in completed or failed after exactly one firing.
type ScheduledCall struct {
	ID        string  `json:"id" db:"id"`
	To        string  `json:"to" db:"to_number"`
	ContactID *string `json:"contact_id,omitempty" db:"contact_id"`

	RecordingID string `json:"recording_id" db:"recording_id"`

	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty" db:"next_run_at"`

	// RecurrencePattern is a 5-field cron expression, evaluated in the scheduler timezone.
	RecurrencePattern string `json:"recurrence_pattern,omitempty" db:"recurrence_pattern"`
	RecurrenceEnabled bool   `json:"recurrence_enabled" db:"recurrence_enabled"`

	DetectionMode           DetectionMode `json:"detection_mode" db:"detection_mode"`
	DetectionTimeoutSeconds int           `json:"detection_timeout_seconds" db:"detection_timeout_seconds"`
	PostBeepDelaySeconds    int           `json:"post_beep_delay_seconds" db:"post_beep_delay_seconds"`

	ProviderOptions ProviderOptions `json:"provider_options" db:"provider_options"`

	Status    ScheduledCallStatus `json:"status" db:"status"`
	LastRunAt *time.Time          `json:"last_run_at,omitempty" db:"last_run_at"`
	LastError string              `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsRecurring reports whether the call fires on its cron pattern rather than once.
func (s ScheduledCall) IsRecurring() bool {
	return s.RecurrenceEnabled && strings.TrimSpace(s.RecurrencePattern) != ""
}

type ScheduledCallStatus string

const (
	ScheduledCallStatusPending    ScheduledCallStatus = "pending"
	ScheduledCallStatusInProgress ScheduledCallStatus = "in_progress"
	ScheduledCallStatusPaused     ScheduledCallStatus = "paused"
	ScheduledCallStatusCompleted  ScheduledCallStatus = "completed"
	ScheduledCallStatusFailed     ScheduledCallStatus = "failed"
)

func (s ScheduledCallStatus) Valid() bool {
	switch s {
	case ScheduledCallStatusPending, ScheduledCallStatusInProgress, ScheduledCallStatusPaused,
		ScheduledCallStatusCompleted, ScheduledCallStatusFailed:
		return true
	default:
		return false
	}
}

// DetectionMode selects how answering-machine detection is requested from the provider.
type DetectionMode string

const (
	DetectionModeEnable           DetectionMode = "enable"
	DetectionModeDetectMessageEnd DetectionMode = "detect_message_end"
	DetectionModeDisabled         DetectionMode = "disabled"
)

// ParseDetectionMode accepts both our vocabulary and the provider's spelling
// ("Enable", "DetectMessageEnd").
func ParseDetectionMode(s string) (DetectionMode, bool) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s))) {
	case "enable":
		return DetectionModeEnable, true
	case "detectmessageend":
		return DetectionModeDetectMessageEnd, true
	case "disabled", "disable", "off", "none":
		return DetectionModeDisabled, true
	default:
		return "", false
	}
}

// ProviderOptions are per-call overrides passed through to the telephony provider.
//
// Extra carries provider-specific parameters that have no typed field. Keys that collide with
// parameters owned by the engine (To, From, Url, StatusCallback, MachineDetection, AsyncAmd, ...)
// are ignored by the provider adapter.
type ProviderOptions struct {
	// TimeoutSeconds is how long the provider lets the destination ring.
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Record         bool   `json:"record,omitempty"`
	CallerID       string `json:"caller_id,omitempty"`

	SpeechThresholdMs    int `json:"speech_threshold_ms,omitempty"`
	SpeechEndThresholdMs int `json:"speech_end_threshold_ms,omitempty"`
	SilenceTimeoutMs     int `json:"silence_timeout_ms,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// CallLog is one concrete call attempt.
//
// ProviderCallID is written exactly once, right after the provider accepts the call. Until then the
// attempt cannot be correlated with provider webhooks.
type CallLog struct {
	ID              string  `json:"id" db:"id"`
	ScheduledCallID *string `json:"scheduled_call_id,omitempty" db:"scheduled_call_id"`
	ContactID       *string `json:"contact_id,omitempty" db:"contact_id"`
	RecordingID     string  `json:"recording_id" db:"recording_id"`
	To              string  `json:"to" db:"to_number"`

	ProviderCallID *string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Status     CallStatus       `json:"status" db:"status"`
	AnsweredBy *DetectionResult `json:"answered_by,omitempty" db:"answered_by"`

	// DurationSeconds and EndedAt are set together, only on terminal statuses.
	DurationSeconds *int `json:"duration,omitempty" db:"duration"`

	ErrorCode    string `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	InitiatedAt time.Time  `json:"initiated_at" db:"initiated_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	RetryOf *string `json:"retry_of,omitempty" db:"retry_of"`
}

// Correlatable reports whether provider webhooks can be matched to this attempt yet.
func (l CallLog) Correlatable() bool {
	return l.ProviderCallID != nil && *l.ProviderCallID != ""
}

type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusCanceled   CallStatus = "canceled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// rank orders statuses for the monotonic transition check. Unknown statuses rank below everything.
func (s CallStatus) rank() int {
	switch s {
	case CallStatusInitiated:
		return 0
	case CallStatusRinging:
		return 1
	case CallStatusInProgress:
		return 2
	}
	if s.IsTerminal() {
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next keeps the status monotonic.
// Terminal statuses are final and a repeated status is not a transition.
func (s CallStatus) CanTransition(next CallStatus) bool {
	if next.rank() < 0 {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// NormalizeCallStatus maps a provider status token ("no-answer", "in-progress", "answered", ...)
// onto the underscore-delimited CallStatus vocabulary.
func NormalizeCallStatus(raw string) (CallStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	switch s {
	case "queued", "initiated":
		return CallStatusInitiated, true
	case "ringing":
		return CallStatusRinging, true
	case "answered", "in_progress":
		return CallStatusInProgress, true
	case "completed":
		return CallStatusCompleted, true
	case "failed":
		return CallStatusFailed, true
	case "busy":
		return CallStatusBusy, true
	case "no_answer":
		return CallStatusNoAnswer, true
	case "canceled", "cancelled":
		return CallStatusCanceled, true
	default:
		return "", false
	}
}

// DetectionResult is the closed set of answering-machine detection outcomes.
type DetectionResult string

const (
	DetectionHuman             DetectionResult = "human"
	DetectionMachineStart      DetectionResult = "machine_start"
	DetectionMachineEndBeep    DetectionResult = "machine_end_beep"
	DetectionMachineEndSilence DetectionResult = "machine_end_silence"
	DetectionMachineEndOther   DetectionResult = "machine_end_other"
	DetectionFax               DetectionResult = "fax"
	DetectionUnknown           DetectionResult = "unknown"
)

// MapDetectionResult maps a provider AnsweredBy value onto DetectionResult.
// Unrecognized values map to DetectionUnknown; it never fails.
func MapDetectionResult(raw string) DetectionResult {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "human":
		return DetectionHuman
	case "machine_start":
		return DetectionMachineStart
	case "machine_end_beep":
		return DetectionMachineEndBeep
	case "machine_end_silence":
		return DetectionMachineEndSilence
	case "machine_end_other":
		return DetectionMachineEndOther
	case "fax":
		return DetectionFax
	default:
		return DetectionUnknown
	}
}

// IsMachine reports whether the result indicates an answering machine of any kind.
func (d DetectionResult) IsMachine() bool {
	return strings.HasPrefix(string(d), "machine_")
}
