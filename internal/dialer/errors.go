package dialer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDestination is returned when the destination is not a valid E.164 number.
	ErrInvalidDestination = errors.New("dialer: invalid destination number")
	// ErrNotRetryable is returned when Retry is asked to redial an attempt that is still live or succeeded.
	ErrNotRetryable = errors.New("dialer: call log is not retryable")
)

// ConfigurationError means the engine cannot place calls at all. No CallLog is created.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "dialer: not configured: " + e.Reason
}

// ProviderError means the provider rejected or failed the call creation request.
// The CallLog it refers to has been marked failed.
type ProviderError struct {
	CallLogID string
	Code      string
	Message   string
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dialer: provider rejected call %s (code %s): %s", e.CallLogID, e.Code, e.Message)
	}
	return fmt.Sprintf("dialer: provider rejected call %s: %s", e.CallLogID, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }
