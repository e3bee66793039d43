// Package limits provides centralized size constants and validation functions
// for the messaging channel.
//
// # Limits
//
//   - MaxTextMessage (65536 characters): the longest text body the network
//     accepts. Counted in runes so multi-byte scripts are not penalised.
//   - MaxCaption (1024 characters): media caption limit.
//   - MaxCredential (1MB): the largest session credential the session store
//     persists.
//   - MaxBridgeFrame (4MB): the read limit for one bridge WebSocket frame.
//
// # Validation Functions
//
//	if err := limits.ValidatePayload(payload); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 4096)
//
// # Sealing Overhead
//
// SealOverhead matches the nonce plus golang.org/x/crypto/nacl/secretbox.Overhead
// added when the file session store seals a credential at rest.
package limits
