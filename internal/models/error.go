package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the distinguishable notification failure kinds.
var (
	// ErrBusUnavailable means the desktop notification bus could not be
	// reached at connect time. The forwarder disables delivery but the
	// sampling pipeline keeps running.
	ErrBusUnavailable = errors.New("notification bus unavailable")
	// ErrSendFailed means a single notification call failed in transport.
	// It applies to that call only; the incident is retried on the next
	// qualifying tick.
	ErrSendFailed = errors.New("notification send failed")
)

// DeliveryError reports a notification delivery failure upward as a
// structured value: which kind of failure plus the underlying cause.
type DeliveryError struct {
	Kind error
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is lets callers match a DeliveryError against the sentinel kinds.
func (e *DeliveryError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewDeliveryError wraps an underlying transport error with its failure kind.
func NewDeliveryError(kind, err error) *DeliveryError {
	return &DeliveryError{Kind: kind, Err: err}
}
