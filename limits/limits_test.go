package limits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/opd-ai/courier/interfaces"
)

// TestSealOverheadMatchesSecretbox verifies SealOverhead is the nonce plus the
// secretbox authentication tag.
func TestSealOverheadMatchesSecretbox(t *testing.T) {
	if SealOverhead != 24+secretbox.Overhead {
		t.Errorf("SealOverhead = %d, want %d", SealOverhead, 24+secretbox.Overhead)
	}
}

func TestBridgeFrameHoldsCredential(t *testing.T) {
	if MaxBridgeFrame <= MaxCredential*4/3+SealOverhead {
		t.Errorf("MaxBridgeFrame %d cannot carry a base64 credential of %d bytes", MaxBridgeFrame, MaxCredential)
	}
}

func TestValidateMessageSize(t *testing.T) {
	assert.ErrorIs(t, ValidateMessageSize(nil, 10), ErrMessageEmpty)
	assert.ErrorIs(t, ValidateMessageSize(make([]byte, 11), 10), ErrMessageTooLarge)
	assert.NoError(t, ValidateMessageSize(make([]byte, 10), 10))
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload interfaces.Payload
		wantErr error
	}{
		{name: "text", payload: interfaces.Payload{Text: "hello"}},
		{name: "media only", payload: interfaces.Payload{MediaURL: "https://cdn.example.com/x.jpg", Caption: "x"}},
		{name: "empty", payload: interfaces.Payload{}, wantErr: ErrMessageEmpty},
		{name: "text at limit in runes", payload: interfaces.Payload{Text: strings.Repeat("é", MaxTextMessage)}},
		{name: "text over limit", payload: interfaces.Payload{Text: strings.Repeat("a", MaxTextMessage+1)}, wantErr: ErrMessageTooLarge},
		{name: "caption over limit", payload: interfaces.Payload{MediaURL: "https://x", Caption: strings.Repeat("c", MaxCaption+1)}, wantErr: ErrMessageTooLarge},
		{name: "url over limit", payload: interfaces.Payload{MediaURL: strings.Repeat("u", MaxMediaURL+1)}, wantErr: ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.payload)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateCredential(t *testing.T) {
	assert.ErrorIs(t, ValidateCredential(nil), ErrMessageEmpty)
	assert.ErrorIs(t, ValidateCredential(make([]byte, MaxCredential+1)), ErrMessageTooLarge)
	assert.NoError(t, ValidateCredential([]byte(`{"WABrowserId":"x"}`)))
}
