package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("calls: not found")
	// ErrProviderCallIDSet is returned when the provider call id was already written for a CallLog.
	ErrProviderCallIDSet = errors.New("calls: provider call id already set")
	ErrDuplicateID       = errors.New("calls: duplicate id")
)

// ScheduledCallMutateFunc and CallLogMutateFunc edit a row in place. Returning changed == false leaves the stored row untouched.
// Implementations run it while holding the row lock, so it must not block on other rows.
type ScheduledCallMutateFunc func(sc *ScheduledCall) (changed bool, err error)

type CallLogMutateFunc func(l *CallLog) (changed bool, err error)

// ScheduledCallRepository is the persistence contract for ScheduledCall rows.
type ScheduledCallRepository interface {
	CreateScheduledCall(ctx context.Context, sc ScheduledCall) error
	GetScheduledCall(ctx context.Context, id string) (ScheduledCall, error)
	// MutateScheduledCall performs a locked read-modify-write and returns the resulting row.
	MutateScheduledCall(ctx context.Context, id string, fn ScheduledCallMutateFunc) (ScheduledCall, error)
	DeleteScheduledCall(ctx context.Context, id string) error
	// ListScheduledCalls lists rows; an empty status returns all of them.
	ListScheduledCalls(ctx context.Context, status ScheduledCallStatus) ([]ScheduledCall, error)
	CountScheduledCallsByStatus(ctx context.Context) (map[ScheduledCallStatus]int, error)
}

// CallLogFilter narrows call log listings. Zero values mean "no filter".
type CallLogFilter struct {
	ScheduledCallID string
	Status          CallStatus
	From            time.Time
	To              time.Time
	Limit           int
}

// CallLogRepository is the persistence contract for CallLog rows.
type CallLogRepository interface {
	CreateCallLog(ctx context.Context, l CallLog) error
	GetCallLog(ctx context.Context, id string) (CallLog, error)
	GetCallLogByProviderCallID(ctx context.Context, providerCallID string) (CallLog, error)
	// SetProviderCallID writes the provider id once; a second write returns ErrProviderCallIDSet.
	SetProviderCallID(ctx context.Context, id, providerCallID string) error
	MutateCallLog(ctx context.Context, id string, fn CallLogMutateFunc) (CallLog, error)
	MutateCallLogByProviderCallID(ctx context.Context, providerCallID string, fn CallLogMutateFunc) (CallLog, error)
	ListCallLogs(ctx context.Context, f CallLogFilter) ([]CallLog, error)
	CountCallLogsByStatus(ctx context.Context, f CallLogFilter) (map[CallStatus]int, error)
	CountCallLogsByDetection(ctx context.Context, f CallLogFilter) (map[DetectionResult]int, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	ScheduledCallRepository
	CallLogRepository
}
