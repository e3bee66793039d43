package courier

import (
	"errors"
	"fmt"
)

// Channel errors.
var (
	// ErrChannelNotReady is returned in strict mode when the connection is
	// not CONNECTED.
	ErrChannelNotReady = errors.New("channel not ready")
	// ErrInvalidTarget is returned when a target address cannot be
	// normalized to a plausible address.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidPayload is returned for empty or oversized payloads.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrSendFailed matches every *SendError.
	ErrSendFailed = errors.New("send failed")
	// ErrNoSessionStore is returned by ResetSession without a session store.
	ErrNoSessionStore = errors.New("no session store configured")
)

// SendError reports a send that failed after the retry policy gave up.
type SendError struct {
	Target   string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *SendError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSendFailed) true for any SendError.
func (e *SendError) Is(target error) bool {
	return target == ErrSendFailed
}
