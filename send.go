package courier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/address"
	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/limits"
	"github.com/opd-ai/courier/messaging"
	"github.com/opd-ai/courier/retry"
)

// SendOptions are per-message options.
type SendOptions struct {
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
	LinkPreview     bool   `json:"linkPreview,omitempty"`
	// Lenient overrides StrictReadyCheck for this call.
	Lenient bool `json:"lenient,omitempty"`
}

func (o SendOptions) transport() interfaces.SendOptions {
	return interfaces.SendOptions{QuotedMessageID: o.QuotedMessageID, LinkPreview: o.LinkPreview}
}

// Registration is the result of QueryRegistration.
type Registration struct {
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
}

// SendOne sends payload to target. The target is normalized first; an
// implausible address fails with ErrInvalidTarget and an empty or oversized
// payload with ErrInvalidPayload, neither of which is retried. A transport
// failure that survives the retry policy is returned as a *SendError.
func (c *Channel) SendOne(ctx context.Context, target string, payload interfaces.Payload, opts SendOptions) (*messaging.Receipt, error) {
	addr, err := normalizeTarget(target)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	if err := c.checkReady("sendOne", opts.Lenient); err != nil {
		return nil, err
	}
	return c.sendJob(ctx, messaging.NewJob(addr, payload, opts.transport()))
}

// sendJob sends an already validated job under the retry policy.
func (c *Channel) sendJob(ctx context.Context, job *messaging.Job) (*messaging.Receipt, error) {
	msg, err := retry.Do(ctx, c.retryPolicy(), "sendMessage", func(ctx context.Context) (*interfaces.SentMessage, error) {
		attempt := job.BeginAttempt()
		tr, err := c.transport()
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"function": "Channel.sendJob",
			"job_id":   job.ID,
			"to":       job.Target,
			"attempt":  attempt,
		}).Debug("Sending message")
		return tr.SendMessage(ctx, job.Target, job.Payload, job.Options)
	})
	if err != nil {
		c.stats.failed.Add(1)
		job.SetState(messaging.JobFailed)
		logrus.WithFields(logrus.Fields{
			"function": "Channel.sendJob",
			"job_id":   job.ID,
			"to":       job.Target,
			"attempts": job.Attempts(),
			"error":    err.Error(),
		}).Error("Message send failed")
		return nil, &SendError{Target: job.Target, Attempts: job.Attempts(), Err: err}
	}
	if msg == nil {
		msg = &interfaces.SentMessage{}
	}

	c.stats.sent.Add(1)
	job.SetState(messaging.JobSent)
	logrus.WithFields(logrus.Fields{
		"function":   "Channel.sendJob",
		"job_id":     job.ID,
		"to":         job.Target,
		"message_id": msg.ID,
		"ack":        msg.Ack.String(),
	}).Info("Message sent")

	return &messaging.Receipt{
		MessageID: msg.ID,
		Address:   job.Target,
		Timestamp: msg.Timestamp,
		Ack:       msg.Ack,
		Attempts:  job.Attempts(),
	}, nil
}

// QueryRegistration reports whether target is reachable on the network.
func (c *Channel) QueryRegistration(ctx context.Context, target string) (*Registration, error) {
	addr, err := normalizeTarget(target)
	if err != nil {
		return nil, err
	}
	if err := c.checkReady("queryRegistration", false); err != nil {
		return nil, err
	}
	ok, err := retry.Do(ctx, c.retryPolicy(), "isRegisteredUser", func(ctx context.Context) (bool, error) {
		tr, err := c.transport()
		if err != nil {
			return false, err
		}
		return tr.IsRegisteredUser(ctx, addr)
	})
	if err != nil {
		return nil, fmt.Errorf("query registration of %s: %w", addr, err)
	}
	return &Registration{Address: addr, Registered: ok}, nil
}

// Chats lists the conversations known to the client.
func (c *Channel) Chats(ctx context.Context) ([]interfaces.Chat, error) {
	if err := c.checkReady("chats", false); err != nil {
		return nil, err
	}
	chats, err := retry.Do(ctx, c.retryPolicy(), "getChats", func(ctx context.Context) ([]interfaces.Chat, error) {
		tr, err := c.transport()
		if err != nil {
			return nil, err
		}
		return tr.Chats(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// ChatByID fetches one conversation, including group metadata for groups.
func (c *Channel) ChatByID(ctx context.Context, id string) (*interfaces.Chat, error) {
	chatID, err := normalizeTarget(id)
	if err != nil {
		return nil, err
	}
	if err := c.checkReady("chatById", false); err != nil {
		return nil, err
	}
	chat, err := retry.Do(ctx, c.retryPolicy(), "getChatById", func(ctx context.Context) (*interfaces.Chat, error) {
		tr, err := c.transport()
		if err != nil {
			return nil, err
		}
		return tr.ChatByID(ctx, chatID)
	})
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	return chat, nil
}

// GroupInviteCode returns the invite code of a group the client administers.
func (c *Channel) GroupInviteCode(ctx context.Context, groupID string) (string, error) {
	id, err := normalizeTarget(groupID)
	if err != nil {
		return "", err
	}
	if !address.IsGroup(id) {
		return "", fmt.Errorf("%w: %s is not a group", ErrInvalidTarget, groupID)
	}
	if err := c.checkReady("groupInviteCode", false); err != nil {
		return "", err
	}
	code, err := retry.Do(ctx, c.retryPolicy(), "getInviteCode", func(ctx context.Context) (string, error) {
		tr, err := c.transport()
		if err != nil {
			return "", err
		}
		return tr.GroupInviteCode(ctx, id)
	})
	if err != nil {
		return "", fmt.Errorf("get invite code for %s: %w", id, err)
	}
	return code, nil
}

// CreateGroup creates a group chat with the given participants.
func (c *Channel) CreateGroup(ctx context.Context, name string, participants []string) (*interfaces.GroupCreation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is empty", ErrInvalidPayload)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidTarget)
	}
	addrs := make([]string, 0, len(participants))
	for _, p := range participants {
		addr, err := normalizeTarget(p)
		if err != nil {
			return nil, err
		}
		if address.IsGroup(addr) {
			return nil, fmt.Errorf("%w: participant %s is a group", ErrInvalidTarget, p)
		}
		addrs = append(addrs, addr)
	}
	if err := c.checkReady("createGroup", false); err != nil {
		return nil, err
	}
	res, err := retry.Do(ctx, c.retryPolicy(), "createGroup", func(ctx context.Context) (*interfaces.GroupCreation, error) {
		tr, err := c.transport()
		if err != nil {
			return nil, err
		}
		return tr.CreateGroup(ctx, name, addrs)
	})
	if err != nil {
		return nil, fmt.Errorf("create group %q: %w", name, err)
	}
	return res, nil
}

func normalizeTarget(target string) (string, error) {
	addr, err := address.Normalize(target)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidTarget, target, err)
	}
	return addr, nil
}

func validatePayload(p interfaces.Payload) error {
	if err := limits.ValidatePayload(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// IsInputError reports whether err is a caller mistake rather than a channel
// or transport failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrInvalidPayload)
}
