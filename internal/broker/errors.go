package broker

import (
	"context"
	"errors"
	"fmt"
)

// Error is a broker failure classified for the retry policy. Transient
// errors (network, timeouts, rate limits) are retried with backoff;
// fatal errors (business-rule rejections) fail the order immediately.
type Error struct {
	Code      string
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal error codes reported by brokers.
const (
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidSymbol     = "INVALID_SYMBOL"
	CodeRejected          = "REJECTED"
	CodeTimeout           = "TIMEOUT"
	CodeUnavailable       = "UNAVAILABLE"
	CodeRateLimited       = "RATE_LIMITED"
)

func NewTransient(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Transient: true, Err: err}
}

func NewFatal(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Transient: false, Err: err}
}

// IsTransient reports whether err should be retried. Context deadline
// expiry counts as transient: a timed-out submission is retried under
// the same budget as any network failure.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}
