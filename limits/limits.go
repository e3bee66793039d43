// Package limits provides centralized payload and frame size limits for the
// messaging channel. This ensures consistent validation across the facade,
// the bridge transport and the session store.
package limits

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/opd-ai/courier/interfaces"
)

const (
	// MaxTextMessage is the longest text body the network accepts, counted in
	// characters rather than bytes.
	MaxTextMessage = 65536

	// MaxCaption is the longest media caption, in characters.
	MaxCaption = 1024

	// MaxMediaURL bounds media references passed to the engine.
	MaxMediaURL = 2048

	// MaxCredential is the largest session credential blob persisted by the
	// session store (1MB).
	MaxCredential = 1024 * 1024

	// SealOverhead is the size added to a credential when sealed at rest:
	// a 24-byte nonce plus the 16-byte Poly1305 tag (secretbox.Overhead).
	SealOverhead = 24 + 16

	// MaxBridgeFrame is the read limit for a single bridge WebSocket frame.
	// It must hold the largest credential plus envelope overhead.
	MaxBridgeFrame = 4 * 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty payload was provided.
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates a payload exceeds its limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a byte slice against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidatePayload validates an outbound payload: it must carry text or media,
// and every field must be within its limit.
func ValidatePayload(p interfaces.Payload) error {
	if p.IsEmpty() {
		return ErrMessageEmpty
	}
	if n := utf8.RuneCountInString(p.Text); n > MaxTextMessage {
		return fmt.Errorf("%w: text length %d exceeds limit %d", ErrMessageTooLarge, n, MaxTextMessage)
	}
	if n := utf8.RuneCountInString(p.Caption); n > MaxCaption {
		return fmt.Errorf("%w: caption length %d exceeds limit %d", ErrMessageTooLarge, n, MaxCaption)
	}
	if len(p.MediaURL) > MaxMediaURL {
		return fmt.Errorf("%w: media URL length %d exceeds limit %d", ErrMessageTooLarge, len(p.MediaURL), MaxMediaURL)
	}
	return nil
}

// ValidateCredential validates a session credential blob before persistence.
func ValidateCredential(blob []byte) error {
	if err := ValidateMessageSize(blob, MaxCredential); err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	return nil
}
