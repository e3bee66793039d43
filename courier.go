package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/qr"
	"github.com/opd-ai/courier/retry"
)

// Channel is the call surface for the messaging connection. Every transport
// operation runs under the shared retry policy and always reaches the live
// transport instance through the lifecycle manager.
type Channel struct {
	options   *Options
	manager   *lifecycle.Manager
	clock     interfaces.TimeProvider
	startedAt time.Time

	bulkMu sync.Mutex
	stats  counters
}

// State is a snapshot of the connection state plus the derived readiness.
type State struct {
	lifecycle.ConnectionState
	IsReady bool `json:"isReady"`
}

// New creates a channel. The transport is not constructed until Start.
func New(options *Options) (*Channel, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.Factory == nil {
		return nil, errors.New("courier: transport factory is required")
	}
	if options.TimeProvider == nil {
		options.TimeProvider = interfaces.DefaultTimeProvider{}
	}
	if options.ClientID == "" {
		options.ClientID = DefaultClientID
	}
	if options.HealthProbeTimeout <= 0 {
		options.HealthProbeTimeout = DefaultHealthProbeTimeout
	}

	c := &Channel{
		options:   options,
		clock:     options.TimeProvider,
		startedAt: options.TimeProvider.Now(),
	}
	c.manager = lifecycle.NewManager(options.Factory,
		lifecycle.WithConfig(options.Lifecycle),
		lifecycle.WithTimeProvider(options.TimeProvider),
	)
	c.manager.OnStateChange(c.logTransition)

	logrus.WithFields(logrus.Fields{
		"function":           "courier.New",
		"client_id":          options.ClientID,
		"strict_ready_check": options.StrictReadyCheck,
		"retry_attempts":     options.RetryAttempts,
		"bulk_pacing":        options.Bulk.Pacing,
	}).Info("Created messaging channel")

	return c, nil
}

// Start constructs and initializes the first transport. A failure has
// already been folded into the state machine, and a retry scheduled, by the
// time it is returned.
func (c *Channel) Start(ctx context.Context) error {
	return c.manager.Start(ctx)
}

// Close destroys the transport and stops scheduled restarts.
func (c *Channel) Close(ctx context.Context) error {
	return c.manager.Close(ctx)
}

// OnMessage registers a callback for inbound messages.
func (c *Channel) OnMessage(fn func(msg *interfaces.InboundMessage)) {
	c.manager.OnMessage(fn)
}

// OnStateChange registers a callback for committed state transitions. It
// must not call Restart.
func (c *Channel) OnStateChange(fn func(prev, next State)) {
	c.manager.OnStateChange(func(prev, next lifecycle.ConnectionState) {
		fn(newState(prev), newState(next))
	})
}

// State returns a copy of the connection state. It never blocks on the
// transport.
func (c *Channel) State() State {
	return newState(c.manager.Snapshot())
}

func newState(s lifecycle.ConnectionState) State {
	return State{ConnectionState: s, IsReady: s.IsReady()}
}

// QRChallenge renders the pending QR challenge. It returns nil without error
// in any phase other than QR_PENDING.
func (c *Channel) QRChallenge() (*qr.Challenge, error) {
	s := c.manager.Snapshot()
	if s.Phase != lifecycle.PhaseQRPending || s.QRChallenge == "" {
		return nil, nil
	}
	return qr.Render(s.QRChallenge, c.options.QRSize)
}

// Restart runs the restart procedure. started is false when the call was
// coalesced into a restart already in flight.
func (c *Channel) Restart(ctx context.Context) (started bool, err error) {
	err = c.manager.Restart(ctx)
	if errors.Is(err, lifecycle.ErrRestartInProgress) {
		return false, nil
	}
	if errors.Is(err, lifecycle.ErrClosed) {
		return false, err
	}
	return true, err
}

// ResetSession deletes the stored credential and restarts, so the engine
// issues a fresh QR challenge. This is the operator remedy once the restart
// ceiling has been reached.
func (c *Channel) ResetSession(ctx context.Context) error {
	if c.options.Store == nil {
		return ErrNoSessionStore
	}
	if err := c.options.Store.Delete(ctx, c.options.ClientID); err != nil {
		return fmt.Errorf("delete stored session: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Channel.ResetSession",
		"client_id": c.options.ClientID,
	}).Warn("Stored session cleared, restarting for a new QR challenge")

	_, err := c.Restart(ctx)
	return err
}

// retryPolicy binds the shared retry wrapper to this channel's health and
// restart procedure.
func (c *Channel) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.options.RetryAttempts > 0 {
		p.MaxAttempts = c.options.RetryAttempts
	}
	if c.options.RetrySettle > 0 {
		p.Settle = c.options.RetrySettle
	}
	p.Clock = c.clock
	p.Health = func() (bool, bool) {
		s := c.manager.Snapshot()
		return s.IsReady(), s.SessionClosed
	}
	p.Restart = func(ctx context.Context) error {
		c.stats.retryRestarts.Add(1)
		return c.manager.Restart(ctx)
	}
	p.OnRetry = func(int, error) {
		c.stats.retries.Add(1)
	}
	return p
}

// transport returns the live transport, or a session-closed error while none
// is installed so the retry wrapper treats the gap as transient.
func (c *Channel) transport() (interfaces.IMessagingTransport, error) {
	tr := c.manager.Transport()
	if tr == nil {
		return nil, fmt.Errorf("no active transport: %w", interfaces.ErrSessionClosed)
	}
	return tr, nil
}

// checkReady enforces StrictReadyCheck for op.
func (c *Channel) checkReady(op string, lenient bool) error {
	s := c.manager.Snapshot()
	if s.IsReady() {
		return nil
	}
	if c.options.StrictReadyCheck && !lenient {
		return fmt.Errorf("%w: phase %s", ErrChannelNotReady, s.Phase)
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Channel.checkReady",
		"operation": op,
		"phase":     s.Phase.String(),
	}).Warn("Channel not ready, attempting anyway")
	return nil
}

func (c *Channel) logTransition(prev, next lifecycle.ConnectionState) {
	if prev.Phase == next.Phase {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Channel.logTransition",
		"from":     prev.Phase.String(),
		"to":       next.Phase.String(),
		"attempts": next.ConnectionAttempts,
	}).Info("Connection phase changed")
}
