// Package scheduler decides when ScheduledCalls fire and keeps armed timers in step with
// their stored status.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/dialer"
	"voice-scheduler/pkg/logger"
)

// Trigger places the call for one firing.
type Trigger interface {
	TriggerCall(ctx context.Context, req dialer.CallRequest, retryOf string) (calls.CallLog, error)
}

type Options struct {
	// Guard defaults to an in-process guard.
	Guard  FireGuard
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string

	DefaultDetectionMode           calls.DetectionMode
	DefaultDetectionTimeoutSeconds int
}

// Service owns the Registry. A ScheduledCall has an armed handle iff its status is pending.
//
// Management operations and timer-driven firings of the same id are serialized by a per-id
// lock; different ids proceed in parallel.
type Service struct {
	store    calls.ScheduledCallRepository
	trigger  Trigger
	cron     CronSchedule
	guard    FireGuard
	registry *Registry
	locks    *keyedMutex

	log   *slog.Logger
	now   func() time.Time
	newID func() string

	defaultMode    calls.DetectionMode
	defaultTimeout int

	base       context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

func NewService(store calls.ScheduledCallRepository, trigger Trigger, cron CronSchedule, opts Options) *Service {
	if opts.Guard == nil {
		opts.Guard = NewMemoryFireGuard()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
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
	log := opts.Logger.With("component", "scheduler")
	base, cancel := context.WithCancel(logger.With(context.Background(), log))
	return &Service{
		store:          store,
		trigger:        trigger,
		cron:           cron,
		guard:          opts.Guard,
		registry:       NewRegistry(),
		locks:          newKeyedMutex(),
		log:            log,
		now:            opts.Now,
		newID:          opts.NewID,
		defaultMode:    opts.DefaultDetectionMode,
		defaultTimeout: opts.DefaultDetectionTimeoutSeconds,
		base:           base,
		cancelBase:     cancel,
	}
}

// Start recovers firings interrupted by a previous shutdown, then arms every pending call.
// Overdue one-shot calls fire before Start returns.
func (s *Service) Start(ctx context.Context) error {
	if err := s.recoverInterrupted(ctx); err != nil {
		return err
	}
	pending, err := s.store.ListScheduledCalls(ctx, calls.ScheduledCallStatusPending)
	if err != nil {
		return fmt.Errorf("scheduler: load pending calls: %w", err)
	}
	for _, sc := range pending {
		if err := s.ScheduleCall(ctx, sc); err != nil {
			s.log.Error("arming scheduled call failed", "scheduled_call_id", sc.ID, "err", err)
		}
	}
	s.log.Info("scheduler started", "pending", len(pending), "armed", s.registry.Len())
	return nil
}

// Stop disarms every handle and waits for in-flight firings until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancelBase()
	s.registry.CancelAll()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleCall arms sc, replacing any existing registration. Calls that are not pending are
// only disarmed. A one-shot call whose time has passed fires before ScheduleCall returns.
func (s *Service) ScheduleCall(ctx context.Context, sc calls.ScheduledCall) error {
	unlock := s.locks.Lock(sc.ID)
	fireNow, err := s.armLocked(ctx, sc)
	unlock()
	if err != nil {
		return err
	}
	s.fireIfDue(ctx, sc.ID, fireNow)
	return nil
}

// CancelScheduledJob disarms id. Unknown ids are a no-op.
func (s *Service) CancelScheduledJob(id string) {
	if s.registry.Cancel(id) {
		s.log.Debug("scheduled job cancelled", "scheduled_call_id", id)
	}
}

// IsArmed reports whether id currently has a registry entry.
func (s *Service) IsArmed(id string) bool { return s.registry.Has(id) }

// ArmedIDs lists the ids with a registry entry.
func (s *Service) ArmedIDs() []string { return s.registry.IDs() }

// armLocked replaces the registration of sc. It reports fireNow for an overdue one-shot call,
// which the caller fires once it has released the per-id lock.
func (s *Service) armLocked(ctx context.Context, sc calls.ScheduledCall) (fireNow bool, err error) {
	s.registry.Cancel(sc.ID)
	if sc.Status != calls.ScheduledCallStatusPending {
		return false, nil
	}
	if s.base.Err() != nil {
		return false, ErrStopped
	}
	log := logger.From(ctx).With("scheduled_call_id", sc.ID)

	if sc.IsRecurring() {
		if err := s.cron.Validate(sc.RecurrencePattern); err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		after := s.now()
		if start := sc.ScheduledAt.Add(-time.Second); start.After(after) {
			after = start
		}
		first, ok := s.cron.Next(sc.RecurrencePattern, after)
		if !ok {
			return false, fmt.Errorf("%w: pattern %q has no future occurrence", ErrInvalidArgument, sc.RecurrencePattern)
		}
		s.persistNextRun(ctx, sc, first)

		h := newHandle(s.base, true)
		s.registry.put(sc.ID, h)
		go s.runRecurring(h, sc.ID, sc.RecurrencePattern, first)
		log.Debug("recurring call armed", "pattern", sc.RecurrencePattern, "next_run_at", first)
		return false, nil
	}

	delay := sc.ScheduledAt.Sub(s.now())
	if delay <= 0 {
		log.Info("scheduled call overdue; firing now", "scheduled_at", sc.ScheduledAt)
		return true, nil
	}
	h := newHandle(s.base, false)
	s.registry.put(sc.ID, h)
	go s.runOnce(h, sc.ID, delay)
	log.Debug("one-shot call armed", "scheduled_at", sc.ScheduledAt, "delay", delay.String())
	return false, nil
}

func (s *Service) fireIfDue(ctx context.Context, id string, fireNow bool) {
	if fireNow {
		s.fire(context.WithoutCancel(ctx), id, nil)
	}
}

func (s *Service) runOnce(h *jobHandle, id string, delay time.Duration) {
	if !sleep(h.ctx, delay) {
		return
	}
	if !s.track() {
		return
	}
	defer s.inflight.Done()
	s.fire(context.WithoutCancel(h.ctx), id, h)
}

// runRecurring keeps one recurring call armed: wait for the occurrence, dispatch the firing on
// its own goroutine, compute the next occurrence. Missed occurrences are not replayed.
func (s *Service) runRecurring(h *jobHandle, id, pattern string, next time.Time) {
	for {
		if !sleep(h.ctx, next.Sub(s.now())) {
			return
		}
		if s.track() {
			go func() {
				defer s.inflight.Done()
				s.fire(context.WithoutCancel(h.ctx), id, h)
			}()
		}

		after := next
		if now := s.now(); now.After(after) {
			after = now
		}
		n, ok := s.cron.Next(pattern, after)
		if !ok {
			s.log.Warn("recurrence has no further occurrence", "scheduled_call_id", id, "pattern", pattern)
			s.registry.removeIf(id, h)
			return
		}
		next = n
	}
}

func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.inflight.Add(1)
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return ctx.Err() == nil
	}
}

// fire runs one firing. h is nil for synchronous overdue firings. The per-id lock covers the
// claim and the outcome write but not the provider call, so Pause, Update and Delete never wait
// on a dial in flight. The guard is taken first: an occurrence that overlaps a running firing of
// the same call is skipped, not queued. Nothing escapes; errors and panics are recorded on the
// ScheduledCall and logged.
func (s *Service) fire(ctx context.Context, id string, h *jobHandle) {
	log := logger.From(ctx).With("scheduled_call_id", id)
	ctx = logger.With(ctx, log)
	defer func() {
		if p := recover(); p != nil {
			log.Error("scheduled call firing panicked outside the dial", "panic", p)
		}
	}()

	if h != nil && !s.registry.isCurrent(id, h) {
		return
	}

	release, err := s.guard.Acquire(ctx, id)
	switch {
	case errors.Is(err, ErrGuardHeld):
		log.Warn("previous firing still running; occurrence skipped")
		return
	case err != nil:
		log.Warn("fire guard unavailable; proceeding without lock", "err", err)
		release = func() {}
	}
	defer release()

	sc, ok := s.claim(ctx, id, h)
	if !ok {
		return
	}
	fireErr := s.dial(ctx, sc)

	unlock := s.locks.Lock(id)
	defer unlock()
	s.finish(ctx, sc, fireErr)
}

// claim moves a pending call to in_progress under the per-id lock.
func (s *Service) claim(ctx context.Context, id string, h *jobHandle) (calls.ScheduledCall, bool) {
	unlock := s.locks.Lock(id)
	defer unlock()
	log := logger.From(ctx)

	// Replaced or disarmed while waiting for the guard or the lock.
	if h != nil && !s.registry.isCurrent(id, h) {
		return calls.ScheduledCall{}, false
	}

	errNotPending := errors.New("not pending")
	sc, err := s.store.MutateScheduledCall(ctx, id, func(cur *calls.ScheduledCall) (bool, error) {
		if cur.Status != calls.ScheduledCallStatusPending {
			return false, errNotPending
		}
		cur.Status = calls.ScheduledCallStatusInProgress
		cur.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		if h != nil && !h.recurring {
			s.registry.removeIf(id, h)
		}
		switch {
		case errors.Is(err, errNotPending), errors.Is(err, calls.ErrNotFound):
			log.Info("scheduled call no longer pending; firing skipped")
		default:
			log.Error("claiming scheduled call failed", "err", err)
		}
		return calls.ScheduledCall{}, false
	}
	if h != nil && !sc.IsRecurring() {
		s.registry.removeIf(id, h)
	}
	return sc, true
}

// dial places the call for a claimed firing. A panic in the trigger becomes a
// ScheduleExecutionError like any other failure.
func (s *Service) dial(ctx context.Context, sc calls.ScheduledCall) (fireErr error) {
	log := logger.From(ctx)
	defer func() {
		if p := recover(); p != nil {
			fireErr = &ScheduleExecutionError{ScheduledCallID: sc.ID, Err: fmt.Errorf("panic: %v", p)}
			log.Error("scheduled call firing panicked", "err", fireErr)
		}
	}()

	l, err := s.trigger.TriggerCall(ctx, dialer.RequestFromScheduled(sc), "")
	if err != nil {
		execErr := &ScheduleExecutionError{ScheduledCallID: sc.ID, Err: err}
		log.Error("scheduled call firing failed", "call_log_id", l.ID, "err", execErr)
		return execErr
	}
	log.Info("scheduled call fired", "call_log_id", l.ID)
	return nil
}

// finish moves a claimed call out of in_progress: one-shot calls end completed or failed,
// recurring calls return to pending with NextRunAt advanced, whatever the outcome. A recurring
// call paused while it was firing keeps its paused status and only records the run.
func (s *Service) finish(ctx context.Context, fired calls.ScheduledCall, fireErr error) {
	now := s.now()
	cause := ""
	var execErr *ScheduleExecutionError
	if errors.As(fireErr, &execErr) {
		cause = execErr.Err.Error()
	} else if fireErr != nil {
		cause = fireErr.Error()
	}

	_, err := s.store.MutateScheduledCall(ctx, fired.ID, func(cur *calls.ScheduledCall) (bool, error) {
		pausedMidFiring := cur.Status == calls.ScheduledCallStatusPaused && cur.IsRecurring()
		if cur.Status != calls.ScheduledCallStatusInProgress && !pausedMidFiring {
			return false, nil
		}
		ran := now
		cur.LastRunAt = &ran
		cur.LastError = cause
		cur.UpdatedAt = now
		switch {
		case pausedMidFiring:
		case cur.IsRecurring():
			cur.Status = calls.ScheduledCallStatusPending
			if next, ok := s.cron.Next(cur.RecurrencePattern, now); ok {
				cur.NextRunAt = &next
			}
		case fireErr != nil:
			cur.Status = calls.ScheduledCallStatusFailed
		default:
			cur.Status = calls.ScheduledCallStatusCompleted
		}
		return true, nil
	})
	if err != nil && !errors.Is(err, calls.ErrNotFound) {
		logger.From(ctx).Error("recording firing outcome failed", "scheduled_call_id", fired.ID, "err", err)
	}
}

func (s *Service) persistNextRun(ctx context.Context, sc calls.ScheduledCall, next time.Time) {
	if sc.NextRunAt != nil && sc.NextRunAt.Equal(next) {
		return
	}
	_, err := s.store.MutateScheduledCall(ctx, sc.ID, func(cur *calls.ScheduledCall) (bool, error) {
		if cur.Status != calls.ScheduledCallStatusPending {
			return false, nil
		}
		n := next
		cur.NextRunAt = &n
		return true, nil
	})
	if err != nil {
		logger.From(ctx).Warn("persisting next run failed", "scheduled_call_id", sc.ID, "err", err)
	}
}

// recoverInterrupted settles calls left in_progress by a process that stopped mid-firing.
// Recurring calls go back to pending; one-shot calls are failed because it is unknown whether
// the provider was reached.
func (s *Service) recoverInterrupted(ctx context.Context) error {
	stuck, err := s.store.ListScheduledCalls(ctx, calls.ScheduledCallStatusInProgress)
	if err != nil {
		return fmt.Errorf("scheduler: load interrupted calls: %w", err)
	}
	for _, sc := range stuck {
		unlock := s.locks.Lock(sc.ID)
		_, err := s.store.MutateScheduledCall(ctx, sc.ID, func(cur *calls.ScheduledCall) (bool, error) {
			if cur.Status != calls.ScheduledCallStatusInProgress {
				return false, nil
			}
			cur.UpdatedAt = s.now()
			if cur.IsRecurring() {
				cur.Status = calls.ScheduledCallStatusPending
				return true, nil
			}
			cur.Status = calls.ScheduledCallStatusFailed
			cur.LastError = "firing interrupted by shutdown"
			return true, nil
		})
		unlock()
		if err != nil {
			s.log.Error("recovering interrupted call failed", "scheduled_call_id", sc.ID, "err", err)
			continue
		}
		s.log.Warn("recovered interrupted firing", "scheduled_call_id", sc.ID, "recurring", sc.IsRecurring())
	}
	return nil
}

// --- management ---

// CreateInput describes a new ScheduledCall. Zero values take defaults.
type CreateInput struct {
	To          string
	ContactID   *string
	RecordingID string
	// ScheduledAt defaults to now, which fires immediately for one-shot calls.
	ScheduledAt time.Time

	RecurrencePattern string
	RecurrenceEnabled bool

	DetectionMode           calls.DetectionMode
	DetectionTimeoutSeconds int
	PostBeepDelaySeconds    int

	ProviderOptions calls.ProviderOptions
}

// UpdateInput changes the non-nil fields of a pending or paused ScheduledCall.
type UpdateInput struct {
	To          *string
	ContactID   *string
	RecordingID *string
	ScheduledAt *time.Time

	RecurrencePattern *string
	RecurrenceEnabled *bool

	DetectionMode           *calls.DetectionMode
	DetectionTimeoutSeconds *int
	PostBeepDelaySeconds    *int

	ProviderOptions *calls.ProviderOptions
}

func (s *Service) Create(ctx context.Context, in CreateInput) (calls.ScheduledCall, error) {
	now := s.now()
	sc := calls.ScheduledCall{
		ID:                      s.newID(),
		To:                      in.To,
		ContactID:               in.ContactID,
		RecordingID:             in.RecordingID,
		ScheduledAt:             in.ScheduledAt,
		RecurrencePattern:       strings.TrimSpace(in.RecurrencePattern),
		RecurrenceEnabled:       in.RecurrenceEnabled,
		DetectionMode:           in.DetectionMode,
		DetectionTimeoutSeconds: in.DetectionTimeoutSeconds,
		PostBeepDelaySeconds:    in.PostBeepDelaySeconds,
		ProviderOptions:         in.ProviderOptions,
		Status:                  calls.ScheduledCallStatusPending,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if sc.ScheduledAt.IsZero() {
		sc.ScheduledAt = now
	}
	if err := s.normalize(&sc); err != nil {
		return calls.ScheduledCall{}, err
	}

	unlock := s.locks.Lock(sc.ID)
	if err := s.store.CreateScheduledCall(ctx, sc); err != nil {
		unlock()
		return calls.ScheduledCall{}, fmt.Errorf("scheduler: create: %w", err)
	}
	fireNow, err := s.armLocked(ctx, sc)
	unlock()
	if err != nil {
		return sc, err
	}
	s.fireIfDue(ctx, sc.ID, fireNow)
	return s.store.GetScheduledCall(ctx, sc.ID)
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (calls.ScheduledCall, error) {
	unlock := s.locks.Lock(id)
	updated, err := s.store.MutateScheduledCall(ctx, id, func(sc *calls.ScheduledCall) (bool, error) {
		if sc.Status != calls.ScheduledCallStatusPending && sc.Status != calls.ScheduledCallStatusPaused {
			return false, fmt.Errorf("%w: cannot edit a %s call", ErrInvalidState, sc.Status)
		}
		applyUpdate(sc, in)
		if err := s.normalize(sc); err != nil {
			return false, err
		}
		sc.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		unlock()
		return calls.ScheduledCall{}, err
	}
	fireNow, err := s.armLocked(ctx, updated)
	unlock()
	if err != nil {
		return updated, err
	}
	s.fireIfDue(ctx, id, fireNow)
	return s.store.GetScheduledCall(ctx, id)
}

// Pause disarms a pending call. Pausing a paused call is a no-op. A recurring call can be paused
// while it is firing: the running firing completes and no further occurrence is armed.
func (s *Service) Pause(ctx context.Context, id string) (calls.ScheduledCall, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sc, err := s.store.MutateScheduledCall(ctx, id, func(sc *calls.ScheduledCall) (bool, error) {
		switch sc.Status {
		case calls.ScheduledCallStatusPaused:
			return false, nil
		case calls.ScheduledCallStatusPending:
			sc.Status = calls.ScheduledCallStatusPaused
			sc.UpdatedAt = s.now()
			return true, nil
		case calls.ScheduledCallStatusInProgress:
			if !sc.IsRecurring() {
				return false, fmt.Errorf("%w: one-shot call is already firing", ErrInvalidState)
			}
			sc.Status = calls.ScheduledCallStatusPaused
			sc.UpdatedAt = s.now()
			return true, nil
		default:
			return false, fmt.Errorf("%w: cannot pause a %s call", ErrInvalidState, sc.Status)
		}
	})
	if err != nil {
		return calls.ScheduledCall{}, err
	}
	s.registry.Cancel(id)
	return sc, nil
}

// Resume re-arms a paused call. An overdue one-shot call fires immediately.
func (s *Service) Resume(ctx context.Context, id string) (calls.ScheduledCall, error) {
	unlock := s.locks.Lock(id)
	sc, err := s.store.MutateScheduledCall(ctx, id, func(sc *calls.ScheduledCall) (bool, error) {
		switch sc.Status {
		case calls.ScheduledCallStatusPending:
			return false, nil
		case calls.ScheduledCallStatusPaused:
			sc.Status = calls.ScheduledCallStatusPending
			sc.UpdatedAt = s.now()
			return true, nil
		default:
			return false, fmt.Errorf("%w: cannot resume a %s call", ErrInvalidState, sc.Status)
		}
	})
	if err != nil {
		unlock()
		return calls.ScheduledCall{}, err
	}
	var fireNow bool
	if !s.registry.Has(id) {
		fireNow, err = s.armLocked(ctx, sc)
	}
	unlock()
	if err != nil {
		return sc, err
	}
	s.fireIfDue(ctx, id, fireNow)
	return s.store.GetScheduledCall(ctx, id)
}

// Delete disarms and removes a call in any status.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.registry.Cancel(id)
	return s.store.DeleteScheduledCall(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (calls.ScheduledCall, error) {
	return s.store.GetScheduledCall(ctx, id)
}

// List returns calls with the given status; an empty status lists all.
func (s *Service) List(ctx context.Context, status calls.ScheduledCallStatus) ([]calls.ScheduledCall, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	return s.store.ListScheduledCalls(ctx, status)
}

// PreviewRuns lists upcoming occurrences of a recurring call.
func (s *Service) PreviewRuns(sc calls.ScheduledCall, n int) []time.Time {
	if !sc.IsRecurring() {
		if sc.Status != calls.ScheduledCallStatusPending {
			return nil
		}
		return []time.Time{sc.ScheduledAt}
	}
	return PreviewNext(s.cron, sc.RecurrencePattern, s.now(), n)
}

func applyUpdate(sc *calls.ScheduledCall, in UpdateInput) {
	if in.To != nil {
		sc.To = *in.To
	}
	if in.ContactID != nil {
		c := *in.ContactID
		sc.ContactID = &c
	}
	if in.RecordingID != nil {
		sc.RecordingID = *in.RecordingID
	}
	if in.ScheduledAt != nil {
		sc.ScheduledAt = *in.ScheduledAt
	}
	if in.RecurrencePattern != nil {
		sc.RecurrencePattern = strings.TrimSpace(*in.RecurrencePattern)
	}
	if in.RecurrenceEnabled != nil {
		sc.RecurrenceEnabled = *in.RecurrenceEnabled
	}
	if in.DetectionMode != nil {
		sc.DetectionMode = *in.DetectionMode
	}
	if in.DetectionTimeoutSeconds != nil {
		sc.DetectionTimeoutSeconds = *in.DetectionTimeoutSeconds
	}
	if in.PostBeepDelaySeconds != nil {
		sc.PostBeepDelaySeconds = *in.PostBeepDelaySeconds
	}
	if in.ProviderOptions != nil {
		sc.ProviderOptions = *in.ProviderOptions
	}
}

// normalize validates sc and fills defaults. NextRunAt is ScheduledAt for one-shot calls and
// is recomputed on arming for recurring ones.
func (s *Service) normalize(sc *calls.ScheduledCall) error {
	to, err := dialer.NormalizeE164(sc.To)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	sc.To = to

	if strings.TrimSpace(sc.RecordingID) == "" {
		return fmt.Errorf("%w: recording_id required", ErrInvalidArgument)
	}
	if sc.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at required", ErrInvalidArgument)
	}
	if sc.RecurrenceEnabled {
		if err := s.cron.Validate(sc.RecurrencePattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	if sc.DetectionMode == "" {
		sc.DetectionMode = s.defaultMode
	} else {
		mode, ok := calls.ParseDetectionMode(string(sc.DetectionMode))
		if !ok {
			return fmt.Errorf("%w: unknown detection_mode %q", ErrInvalidArgument, sc.DetectionMode)
		}
		sc.DetectionMode = mode
	}
	if sc.DetectionTimeoutSeconds == 0 {
		sc.DetectionTimeoutSeconds = s.defaultTimeout
	} else if sc.DetectionTimeoutSeconds < 3 || sc.DetectionTimeoutSeconds > 59 {
		return fmt.Errorf("%w: detection_timeout_seconds must be between 3 and 59", ErrInvalidArgument)
	}
	if sc.PostBeepDelaySeconds < 0 {
		return fmt.Errorf("%w: post_beep_delay_seconds must not be negative", ErrInvalidArgument)
	}
	o := sc.ProviderOptions
	if o.TimeoutSeconds < 0 || o.SpeechThresholdMs < 0 || o.SpeechEndThresholdMs < 0 || o.SilenceTimeoutMs < 0 {
		return fmt.Errorf("%w: provider options must not be negative", ErrInvalidArgument)
	}
	if o.CallerID != "" {
		if _, err := dialer.NormalizeE164(o.CallerID); err != nil {
			return fmt.Errorf("%w: caller_id: %w", ErrInvalidArgument, err)
		}
	}

	if sc.IsRecurring() {
		sc.NextRunAt = nil
	} else {
		at := sc.ScheduledAt
		sc.NextRunAt = &at
	}
	return nil
}
