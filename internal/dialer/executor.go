// Package dialer turns a call request into a CallLog and a provider call.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/config"
	"voice-scheduler/internal/metrics"
	"voice-scheduler/internal/telephony"
	"voice-scheduler/pkg/logger"
)

// statusEvents are the progress callbacks requested for every call.
var statusEvents = []string{"initiated", "ringing", "answered", "completed"}

// CallRequest is one attempt to dial. ScheduledCallID is empty for ad-hoc calls and retries.
type CallRequest struct {
	ScheduledCallID string
	ContactID       *string
	RecordingID     string
	To              string

	// DetectionMode falls back to the executor default when empty.
	DetectionMode           calls.DetectionMode
	DetectionTimeoutSeconds int

	ProviderOptions calls.ProviderOptions
}

// RequestFromScheduled builds the request a firing of sc dials.
func RequestFromScheduled(sc calls.ScheduledCall) CallRequest {
	return CallRequest{
		ScheduledCallID:         sc.ID,
		ContactID:               sc.ContactID,
		RecordingID:             sc.RecordingID,
		To:                      sc.To,
		DetectionMode:           sc.DetectionMode,
		DetectionTimeoutSeconds: sc.DetectionTimeoutSeconds,
		ProviderOptions:         sc.ProviderOptions,
	}
}

type Options struct {
	// PublicBaseURL is where the provider reaches our webhooks. It can be set later with
	// SetPublicBaseURL; until then every call fails with a ConfigurationError.
	PublicBaseURL string
	FromNumber    string
	// Resolver checks callback hostnames when the base is set; nil checks names only.
	Resolver config.HostResolver

	DefaultDetectionMode           calls.DetectionMode
	DefaultDetectionTimeoutSeconds int

	Now   func() time.Time
	NewID func() string
}

// Executor creates CallLogs and places the provider calls for them.
type Executor struct {
	logs     calls.CallLogRepository
	provider telephony.OutboundProvider
	metrics  metrics.Recorder
	resolver config.HostResolver

	from           string
	defaultMode    calls.DetectionMode
	defaultTimeout int
	now            func() time.Time
	newID          func() string

	mu            sync.RWMutex
	publicBaseURL string
}

func NewExecutor(logs calls.CallLogRepository, provider telephony.OutboundProvider, rec metrics.Recorder, opts Options) *Executor {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.DefaultDetectionMode == "" {
		opts.DefaultDetectionMode = calls.DetectionModeDetectMessageEnd
	}
	if opts.DefaultDetectionTimeoutSeconds <= 0 {
		opts.DefaultDetectionTimeoutSeconds = 30
	}
	if rec == nil {
		rec = metrics.NewMemoryRecorder()
	}
	return &Executor{
		logs:           logs,
		provider:       provider,
		metrics:        rec,
		resolver:       opts.Resolver,
		from:           strings.TrimSpace(opts.FromNumber),
		defaultMode:    opts.DefaultDetectionMode,
		defaultTimeout: opts.DefaultDetectionTimeoutSeconds,
		now:            opts.Now,
		newID:          opts.NewID,
		publicBaseURL:  strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"),
	}
}

// SetPublicBaseURL replaces the callback base. An unusable value, including a hostname that
// resolves to a private address, is rejected and the current one kept.
func (e *Executor) SetPublicBaseURL(ctx context.Context, u string) error {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if err := config.ResolvePublicBaseURL(ctx, e.resolver, u); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	e.mu.Lock()
	e.publicBaseURL = u
	e.mu.Unlock()
	return nil
}

// PublicBaseURL returns the current callback base, possibly empty.
func (e *Executor) PublicBaseURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publicBaseURL
}

// TriggerCall places one call. The CallLog is persisted as initiated before the provider is
// contacted, and the provider call id is written once the provider accepts the call.
//
// Errors:
//   - *ConfigurationError: nothing was persisted.
//   - ErrInvalidDestination: nothing was persisted.
//   - *ProviderError: the returned CallLog is the failed attempt.
func (e *Executor) TriggerCall(ctx context.Context, req CallRequest, retryOf string) (calls.CallLog, error) {
	base, err := e.preflight()
	if err != nil {
		return calls.CallLog{}, err
	}
	to, err := NormalizeE164(req.To)
	if err != nil {
		return calls.CallLog{}, err
	}
	if strings.TrimSpace(req.RecordingID) == "" {
		return calls.CallLog{}, errors.New("dialer: recording_id required")
	}

	l := calls.CallLog{
		ID:          e.newID(),
		ContactID:   req.ContactID,
		RecordingID: req.RecordingID,
		To:          to,
		Status:      calls.CallStatusInitiated,
		InitiatedAt: e.now(),
	}
	if req.ScheduledCallID != "" {
		id := req.ScheduledCallID
		l.ScheduledCallID = &id
	}
	if retryOf != "" {
		id := retryOf
		l.RetryOf = &id
	}
	if err := e.logs.CreateCallLog(ctx, l); err != nil {
		return calls.CallLog{}, fmt.Errorf("dialer: create call log: %w", err)
	}

	log := logger.From(ctx).With("call_log_id", l.ID, "scheduled_call_id", req.ScheduledCallID)

	out := telephony.OutboundCallRequest{
		To:                l.To,
		From:              e.from,
		InstructionURL:    fmt.Sprintf("%s/webhooks/twilio/calls/%s/twiml", base, l.ID),
		StatusCallbackURL: fmt.Sprintf("%s/webhooks/twilio/calls/%s/status", base, l.ID),
		StatusEvents:      statusEvents,
		Options:           req.ProviderOptions,
	}
	mode := req.DetectionMode
	if mode == "" {
		mode = e.defaultMode
	}
	switch mode {
	case calls.DetectionModeEnable:
		out.MachineDetection = telephony.MachineDetectionEnable
	case calls.DetectionModeDetectMessageEnd:
		out.MachineDetection = telephony.MachineDetectionDetectMessageEnd
	}
	if out.MachineDetection != "" {
		out.MachineDetectionTimeoutSeconds = req.DetectionTimeoutSeconds
		if out.MachineDetectionTimeoutSeconds <= 0 {
			out.MachineDetectionTimeoutSeconds = e.defaultTimeout
		}
	}

	res, err := e.provider.CreateCall(ctx, out)
	if err != nil {
		code, msg := telephony.ErrorDetails(err)
		e.metrics.IncProviderFailure(ctx, code)
		log.Error("provider call creation failed", "code", code, "err", err)

		failed, mErr := e.markFailed(ctx, l.ID, code, msg)
		if mErr != nil {
			log.Error("marking call log failed", "err", mErr)
			failed = l
		}
		return failed, &ProviderError{CallLogID: l.ID, Code: code, Message: msg, Err: err}
	}

	if err := e.logs.SetProviderCallID(ctx, l.ID, res.CallSID); err != nil {
		return l, fmt.Errorf("dialer: store provider call id: %w", err)
	}
	sid := res.CallSID
	l.ProviderCallID = &sid
	log.Info("call placed", "call_sid", sid, "detection", string(mode))
	return l, nil
}

// Retry redials a finished attempt that did not complete. The new CallLog references the
// original through RetryOf and is not tied to any ScheduledCall.
func (e *Executor) Retry(ctx context.Context, callLogID string) (calls.CallLog, error) {
	orig, err := e.logs.GetCallLog(ctx, callLogID)
	if err != nil {
		return calls.CallLog{}, err
	}
	if !orig.Status.IsTerminal() || orig.Status == calls.CallStatusCompleted {
		return calls.CallLog{}, fmt.Errorf("%w: status %s", ErrNotRetryable, orig.Status)
	}
	return e.TriggerCall(ctx, CallRequest{
		ContactID:   orig.ContactID,
		RecordingID: orig.RecordingID,
		To:          orig.To,
	}, orig.ID)
}

func (e *Executor) preflight() (string, error) {
	base := e.PublicBaseURL()
	if err := config.ValidatePublicBaseURL(base); err != nil {
		return "", &ConfigurationError{Reason: "public callback url: " + err.Error()}
	}
	if e.provider == nil {
		return "", &ConfigurationError{Reason: "telephony provider missing"}
	}
	if err := e.provider.Ready(); err != nil {
		return "", &ConfigurationError{Reason: err.Error()}
	}
	if e.from == "" {
		return "", &ConfigurationError{Reason: "caller number (TWILIO_FROM_NUMBER) missing"}
	}
	return base, nil
}

func (e *Executor) markFailed(ctx context.Context, id, code, msg string) (calls.CallLog, error) {
	now := e.now()
	var transitioned bool
	out, err := e.logs.MutateCallLog(ctx, id, func(l *calls.CallLog) (bool, error) {
		if l.Status.IsTerminal() {
			return false, nil
		}
		zero := 0
		l.Status = calls.CallStatusFailed
		l.ErrorCode = code
		l.ErrorMessage = msg
		l.EndedAt = &now
		l.DurationSeconds = &zero
		transitioned = true
		return true, nil
	})
	if err == nil && transitioned {
		e.metrics.IncCallStatus(ctx, calls.CallStatusFailed)
	}
	return out, err
}
