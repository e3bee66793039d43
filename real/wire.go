package real

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/courier/interfaces"
)

// Bridge RPC method names understood by the automation worker.
const (
	MethodInitialize       = "initialize"
	MethodDestroy          = "destroy"
	MethodSendMessage      = "sendMessage"
	MethodIsRegisteredUser = "isRegisteredUser"
	MethodGetChats         = "getChats"
	MethodGetChatByID      = "getChatById"
	MethodGetInviteCode    = "getInviteCode"
	MethodCreateGroup      = "createGroup"
	MethodGetState         = "getState"
)

// CodeSessionClosed is the error code the worker uses when the browser page
// or protocol session behind the client has gone away.
const CodeSessionClosed = "SESSION_CLOSED"

// request is a client-to-worker call.
type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// frame is any worker-to-client message: a response when ID is set, an event
// when Event is set.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *BridgeError    `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// BridgeError is an error reported by the automation worker.
type BridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge error %s: %s", e.Code, e.Message)
}

// Is lets errors.Is match interfaces.ErrSessionClosed for session-closed
// codes.
func (e *BridgeError) Is(target error) bool {
	return target == interfaces.ErrSessionClosed && e.Code == CodeSessionClosed
}

// eventData is the union of lifecycle event payloads.
type eventData struct {
	QR      string                 `json:"qr,omitempty"`
	Session []byte                 `json:"session,omitempty"`
	Info    *interfaces.ClientInfo `json:"info,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
	State   string                 `json:"state,omitempty"`
	Message string                 `json:"message,omitempty"`
	Code    string                 `json:"code,omitempty"`
}

type initializeParams struct {
	ClientID string `json:"clientId"`
	Session  []byte `json:"session,omitempty"`
}

type sendParams struct {
	To      string                 `json:"to"`
	Payload interfaces.Payload     `json:"payload"`
	Options interfaces.SendOptions `json:"options"`
}

type addressParams struct {
	Address string `json:"address"`
}

type idParams struct {
	ID string `json:"id"`
}

type groupParams struct {
	GroupID string `json:"groupId"`
}

type createGroupParams struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// decodeEvent turns a wire event into an interfaces.Event.
func decodeEvent(f *frame) (interfaces.Event, error) {
	ev := interfaces.Event{Type: interfaces.EventType(f.Event)}

	if ev.Type == interfaces.EventMessage {
		var msg interfaces.InboundMessage
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return ev, fmt.Errorf("decode message event: %w", err)
		}
		ev.Message = &msg
		return ev, nil
	}

	var d eventData
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return ev, fmt.Errorf("decode %s event: %w", f.Event, err)
		}
	}
	switch ev.Type {
	case interfaces.EventQR:
		ev.QR = d.QR
	case interfaces.EventAuthenticated:
		ev.Session = d.Session
	case interfaces.EventReady:
		ev.Info = d.Info
	case interfaces.EventAuthFailure, interfaces.EventDisconnected:
		ev.Reason = d.Reason
	case interfaces.EventStateChanged:
		ev.State = d.State
	case interfaces.EventError:
		ev.Err = &BridgeError{Code: d.Code, Message: d.Message}
	default:
		return ev, fmt.Errorf("unknown bridge event %q", f.Event)
	}
	return ev, nil
}
