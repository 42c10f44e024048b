// Package lifecycle drives CallLogs through their states from provider callbacks.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/metrics"
	"voice-scheduler/internal/telephony"
	"voice-scheduler/pkg/logger"
)

// ErrUnknownCallLog is returned by HandleInstructionFetch for a call log id that does not exist.
var ErrUnknownCallLog = telephony.ErrUnknownCallLog

type Options struct {
	// DefaultPostBeepDelaySeconds applies when the call has no ScheduledCall or it sets no delay.
	DefaultPostBeepDelaySeconds int
	Now                         func() time.Time
}

// Machine applies provider callbacks to CallLogs.
//
// Status is monotonic: initiated < ringing < in_progress < terminal. Events that would move a
// call backwards, or arrive after it ended, are ignored.
type Machine struct {
	logs      calls.CallLogRepository
	scheduled calls.ScheduledCallRepository
	audio     AudioResolver
	metrics   metrics.Recorder

	defaultDelay int
	now          func() time.Time
}

func NewMachine(store calls.Store, audio AudioResolver, rec metrics.Recorder, opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if rec == nil {
		rec = metrics.NewMemoryRecorder()
	}
	return &Machine{
		logs:         store,
		scheduled:    store,
		audio:        audio,
		metrics:      rec,
		defaultDelay: opts.DefaultPostBeepDelaySeconds,
		now:          opts.Now,
	}
}

var _ telephony.CallEventSink = (*Machine)(nil)

// HandleStatus applies a progress callback. Callbacks for unknown provider ids are logged and dropped.
func (m *Machine) HandleStatus(ctx context.Context, ev telephony.StatusEvent) error {
	log := logger.From(ctx).With("call_sid", ev.CallSID, "status", ev.Status)

	next, ok := calls.NormalizeCallStatus(ev.Status)
	if !ok {
		log.Warn("unrecognized call status ignored")
		return nil
	}

	now := m.now()
	applied := false
	updated, err := m.logs.MutateCallLogByProviderCallID(ctx, ev.CallSID, func(l *calls.CallLog) (bool, error) {
		if !l.Status.CanTransition(next) {
			return false, nil
		}
		l.Status = next
		if next == calls.CallStatusInProgress && l.AnsweredAt == nil {
			l.AnsweredAt = &now
		}
		if next.IsTerminal() {
			ended := now
			l.EndedAt = &ended
			d := 0
			switch {
			case ev.DurationSeconds != nil:
				d = *ev.DurationSeconds
			case l.AnsweredAt != nil:
				d = int(now.Sub(*l.AnsweredAt).Seconds())
			}
			l.DurationSeconds = &d
			if ev.ErrorCode != "" {
				l.ErrorCode = ev.ErrorCode
			}
			if ev.ErrorMessage != "" {
				l.ErrorMessage = ev.ErrorMessage
			}
		}
		if ev.AnsweredBy != "" && l.AnsweredBy == nil {
			r := calls.MapDetectionResult(ev.AnsweredBy)
			l.AnsweredBy = &r
		}
		applied = true
		return true, nil
	})
	if errors.Is(err, calls.ErrNotFound) {
		log.Warn("status for unknown call dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lifecycle: apply status: %w", err)
	}
	if !applied {
		log.Debug("stale status ignored", "current", string(updated.Status))
		return nil
	}

	log.Info("call status updated", "call_log_id", updated.ID, "new_status", string(next))
	if next.IsTerminal() {
		m.metrics.IncCallStatus(ctx, next)
		// Only provider-reported durations feed the histogram; the stored fallback is an estimate.
		if ev.DurationSeconds != nil {
			m.metrics.ObserveCallDuration(ctx, *ev.DurationSeconds)
		}
	}
	return nil
}

// HandleInstructionFetch records the detection result carried by the fetch, then returns the
// instruction document for the call. The result is persisted before the document is built.
func (m *Machine) HandleInstructionFetch(ctx context.Context, callLogID, answeredBy string) (string, error) {
	log := logger.From(ctx).With("call_log_id", callLogID)

	var (
		l   calls.CallLog
		err error
	)
	if answeredBy != "" {
		result := calls.MapDetectionResult(answeredBy)
		l, err = m.logs.MutateCallLog(ctx, callLogID, func(l *calls.CallLog) (bool, error) {
			if l.AnsweredBy != nil && *l.AnsweredBy == result {
				return false, nil
			}
			l.AnsweredBy = &result
			return true, nil
		})
		if err == nil {
			log.Info("detection result recorded", "answered_by", string(result))
		}
	} else {
		l, err = m.logs.GetCallLog(ctx, callLogID)
	}
	if errors.Is(err, calls.ErrNotFound) {
		return "", ErrUnknownCallLog
	}
	if err != nil {
		return "", fmt.Errorf("lifecycle: load call log: %w", err)
	}

	delay := m.postBeepDelay(ctx, l)
	audioURL, err := m.audio.AudioURL(ctx, l.RecordingID)
	if err != nil {
		return "", fmt.Errorf("lifecycle: resolve audio: %w", err)
	}
	return telephony.BuildInstructions(audioURL, delay)
}

// HandleDetection applies a legacy asynchronous detection callback.
func (m *Machine) HandleDetection(ctx context.Context, callSID, answeredBy string) error {
	log := logger.From(ctx).With("call_sid", callSID)
	result := calls.MapDetectionResult(answeredBy)

	_, err := m.logs.MutateCallLogByProviderCallID(ctx, callSID, func(l *calls.CallLog) (bool, error) {
		l.AnsweredBy = &result
		return true, nil
	})
	if errors.Is(err, calls.ErrNotFound) {
		log.Warn("detection for unknown call dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lifecycle: apply detection: %w", err)
	}
	log.Info("detection result recorded", "answered_by", string(result))
	return nil
}

func (m *Machine) postBeepDelay(ctx context.Context, l calls.CallLog) int {
	if l.ScheduledCallID == nil {
		return m.defaultDelay
	}
	sc, err := m.scheduled.GetScheduledCall(ctx, *l.ScheduledCallID)
	if err != nil {
		if !errors.Is(err, calls.ErrNotFound) {
			logger.From(ctx).Warn("scheduled call lookup failed; using default delay", "scheduled_call_id", *l.ScheduledCallID, "err", err)
		}
		return m.defaultDelay
	}
	if sc.PostBeepDelaySeconds > 0 {
		return sc.PostBeepDelaySeconds
	}
	return m.defaultDelay
}
