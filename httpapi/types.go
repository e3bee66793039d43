package httpapi

import (
	"github.com/opd-ai/courier"
	"github.com/opd-ai/courier/interfaces"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SendRequest is the body of POST /api/v1/messages.
type SendRequest struct {
	To              string `json:"to"`
	Text            string `json:"text"`
	MediaURL        string `json:"mediaUrl,omitempty"`
	Caption         string `json:"caption,omitempty"`
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
	LinkPreview     bool   `json:"linkPreview,omitempty"`
	Lenient         bool   `json:"lenient,omitempty"`
}

func (r SendRequest) payload() interfaces.Payload {
	return interfaces.Payload{Text: r.Text, MediaURL: r.MediaURL, Caption: r.Caption}
}

// BulkRequest is the body of POST /api/v1/messages/bulk. Unset options fall
// back to the channel's bulk policy.
type BulkRequest struct {
	Targets         []string `json:"targets"`
	Text            string   `json:"text"`
	MediaURL        string   `json:"mediaUrl,omitempty"`
	Caption         string   `json:"caption,omitempty"`
	PacingMs        *int64   `json:"pacingMs,omitempty"`
	ContinueOnError *bool    `json:"continueOnError,omitempty"`
	Lenient         bool     `json:"lenient,omitempty"`
}

func (r BulkRequest) payload() interfaces.Payload {
	return interfaces.Payload{Text: r.Text, MediaURL: r.MediaURL, Caption: r.Caption}
}

// GroupRequest is the body of POST /api/v1/groups.
type GroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// ChatListResponse wraps GET /api/v1/chats.
type ChatListResponse struct {
	Chats []interfaces.Chat `json:"chats"`
}

// InviteCodeResponse wraps GET /api/v1/groups/{id}/invite-code.
type InviteCodeResponse struct {
	Code string `json:"code"`
}

// RestartResponse reports whether a restart was started or joined one
// already in flight.
type RestartResponse struct {
	Started bool          `json:"started"`
	State   courier.State `json:"state"`
}
