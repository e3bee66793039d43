package interfaces

import (
	"errors"
	"strings"
)

// ErrSessionClosed marks the retryable class of failures where the engine's
// underlying session died mid-operation.
var ErrSessionClosed = errors.New("session closed")

// sessionClosedMarkers are message fragments automation engines emit when the
// browser page, target or protocol session has gone away.
var sessionClosedMarkers = []string{
	"session closed",
	"target closed",
	"protocol error",
	"execution context was destroyed",
	"page has been closed",
	"browser has disconnected",
	"connection closed",
}

// disconnectReasonMarkers are disconnect reasons that imply the session must
// be rebuilt rather than merely waited out.
var disconnectReasonMarkers = []string{
	"navigation",
	"timeout",
	"timed out",
	"session closed",
	"target closed",
	"conflict",
}

// IsSessionClosed reports whether err belongs to the session-terminated class.
func IsSessionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionClosed) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), sessionClosedMarkers)
}

// IsSessionClosedReason reports whether a disconnect reason indicates a
// navigation, timeout or session-closed condition.
func IsSessionClosedReason(reason string) bool {
	return containsAny(strings.ToLower(reason), disconnectReasonMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
