package interfaces

import (
	"context"
	"errors"
	"time"
)

// EventType identifies a lifecycle or message event emitted by a transport.
type EventType string

const (
	// EventQR is emitted when a QR challenge is issued.
	EventQR EventType = "qr"
	// EventAuthenticated is emitted when the credential is accepted.
	EventAuthenticated EventType = "authenticated"
	// EventReady is emitted when the client is loaded and operational.
	EventReady EventType = "ready"
	// EventAuthFailure is emitted when authentication is rejected.
	EventAuthFailure EventType = "auth_failure"
	// EventDisconnected is emitted when the client loses its connection.
	EventDisconnected EventType = "disconnected"
	// EventStateChanged carries a raw engine state string.
	EventStateChanged EventType = "change_state"
	// EventError is emitted for fatal engine errors.
	EventError EventType = "error"
	// EventMessage carries an inbound message.
	EventMessage EventType = "message"
)

// ClientInfo describes the account the transport is logged in as.
type ClientInfo struct {
	Address  string `json:"address"`
	PushName string `json:"pushName,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// InboundMessage is a message received from the external network.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"fromMe,omitempty"`
}

// Event is a single notification from a transport. Only the fields relevant
// to Type are populated.
type Event struct {
	Type    EventType
	QR      string
	Reason  string
	State   string
	Info    *ClientInfo
	Message *InboundMessage
	Err     error
	// Session carries an opaque credential blob on EventAuthenticated when the
	// engine hands one back for persistence.
	Session []byte
}

// EventHandler receives transport events in arrival order.
type EventHandler func(Event)

// Payload is the content of an outbound message.
type Payload struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// IsEmpty reports whether the payload carries no content at all.
func (p Payload) IsEmpty() bool {
	return p.Text == "" && p.MediaURL == ""
}

// SendOptions are passed through to the engine's send call.
type SendOptions struct {
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
	LinkPreview     bool   `json:"linkPreview,omitempty"`
}

// AckLevel is the delivery acknowledgement level reported by the network.
type AckLevel int

const (
	// AckError means the network rejected the message.
	AckError AckLevel = -1
	// AckPending means the message has not reached the server yet.
	AckPending AckLevel = 0
	// AckServer means the server accepted the message.
	AckServer AckLevel = 1
	// AckDevice means the recipient device received the message.
	AckDevice AckLevel = 2
	// AckRead means the recipient read the message.
	AckRead AckLevel = 3
	// AckPlayed means the recipient played a voice/media message.
	AckPlayed AckLevel = 4
)

// String returns a human-readable acknowledgement level.
func (a AckLevel) String() string {
	switch a {
	case AckError:
		return "error"
	case AckPending:
		return "pending"
	case AckServer:
		return "server"
	case AckDevice:
		return "device"
	case AckRead:
		return "read"
	case AckPlayed:
		return "played"
	default:
		return "unknown"
	}
}

// SentMessage is the engine's receipt for a send.
type SentMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Ack       AckLevel  `json:"ack"`
}

// Participant is a member of a group chat.
type Participant struct {
	Address      string `json:"address"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	Owner        string        `json:"owner,omitempty"`
	Description  string        `json:"description,omitempty"`
	CreatedAt    time.Time     `json:"createdAt,omitempty"`
	Participants []Participant `json:"participants"`
}

// Chat is a conversation known to the client.
type Chat struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	IsGroup     bool           `json:"isGroup"`
	UnreadCount int            `json:"unreadCount"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
	Group       *GroupMetadata `json:"group,omitempty"`
}

// GroupCreation is the result of creating a group.
type GroupCreation struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	MissingParticipants []string `json:"missingParticipants,omitempty"`
}

// IMessagingTransport is the automation-driven messaging client. Every method
// may fail with an error of the session-closed class at any time.
type IMessagingTransport interface {
	// Subscribe registers a handler for lifecycle and message events.
	// Subscriptions do not survive instance replacement.
	Subscribe(handler EventHandler)

	// Initialize connects the client. Lifecycle events follow asynchronously.
	Initialize(ctx context.Context) error

	// Destroy tears the client down. The instance is unusable afterwards.
	Destroy(ctx context.Context) error

	// SendMessage sends payload to a normalized address.
	SendMessage(ctx context.Context, to string, payload Payload, opts SendOptions) (*SentMessage, error)

	// IsRegisteredUser reports whether an address is reachable on the network.
	IsRegisteredUser(ctx context.Context, address string) (bool, error)

	// Chats lists the conversations known to the client.
	Chats(ctx context.Context) ([]Chat, error)

	// ChatByID fetches one conversation including group metadata.
	ChatByID(ctx context.Context, id string) (*Chat, error)

	// GroupInviteCode returns the invite code of a group the client administers.
	GroupInviteCode(ctx context.Context, groupID string) (string, error)

	// CreateGroup creates a group with the given participants.
	CreateGroup(ctx context.Context, name string, participants []string) (*GroupCreation, error)

	// State is a lightweight liveness probe returning the engine's raw state.
	State(ctx context.Context) (string, error)
}

// TransportConfig holds configuration for transport implementations.
type TransportConfig struct {
	// UseSimulation selects the in-memory simulated transport.
	UseSimulation bool

	// BridgeURL is the WebSocket endpoint of the browser-automation worker.
	BridgeURL string

	// ClientID scopes the persisted credential to this application instance.
	ClientID string

	// CallTimeout bounds a single request/response exchange with the engine.
	CallTimeout time.Duration

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
}

// Configuration validation errors.
var (
	ErrInvalidCallTimeout = errors.New("call timeout must be positive")
	ErrMissingBridgeURL   = errors.New("bridge URL is required unless simulation is enabled")
	ErrMissingClientID    = errors.New("client ID is required")
)

// Validate checks the configuration for consistency.
func (c *TransportConfig) Validate() error {
	if c.CallTimeout <= 0 {
		return ErrInvalidCallTimeout
	}
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	if !c.UseSimulation && c.BridgeURL == "" {
		return ErrMissingBridgeURL
	}
	return nil
}
