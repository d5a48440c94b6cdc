package paymob

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable marks transient failures: transport errors, timeouts,
	// rate limiting and 5xx responses. Safe to retry.
	ErrGatewayUnavailable = errors.New("paymob: gateway unavailable")
	// ErrGatewayRejected marks protocol-level rejections. Not retried.
	ErrGatewayRejected = errors.New("paymob: gateway rejected request")
)

type UnavailableError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paymob: %s unavailable (%d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("paymob: %s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrGatewayUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }

type RejectedError struct {
	Op         string
	StatusCode int
	Message    string
	// Duplicate is set when the gateway reports a reused merchant reference.
	Duplicate bool
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("paymob: %s rejected (%d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("paymob: %s rejected (%d): %s", e.Op, e.StatusCode, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrGatewayRejected }

// IsDuplicate reports whether err is a duplicate merchant reference rejection.
func IsDuplicate(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) && rejected.Duplicate
}
