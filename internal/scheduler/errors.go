package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("scheduler: invalid argument")
	// ErrInvalidState is returned when an operation does not apply to the call's current status.
	ErrInvalidState = errors.New("scheduler: operation not allowed in current status")
	ErrStopped      = errors.New("scheduler: stopped")
)

// ScheduleExecutionError is a failure inside a firing. It is caught at the firing boundary,
// recorded on the ScheduledCall and never escapes the scheduler.
type ScheduleExecutionError struct {
	ScheduledCallID string
	Err             error
}

func (e *ScheduleExecutionError) Error() string {
	return fmt.Sprintf("scheduler: firing %s failed: %v", e.ScheduledCallID, e.Err)
}

func (e *ScheduleExecutionError) Unwrap() error { return e.Err }
