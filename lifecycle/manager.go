package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
)

// Lifecycle errors.
var (
	// ErrRestartInProgress is returned to a caller whose restart request was
	// coalesced into one already in flight.
	ErrRestartInProgress = errors.New("restart already in progress")
	// ErrRestartCeiling is recorded when automatic restarts stop because the
	// attempt ceiling was reached.
	ErrRestartCeiling = errors.New("restart ceiling reached")
	// ErrAlreadyStarted is returned by Start when a transport already exists.
	ErrAlreadyStarted = errors.New("lifecycle manager already started")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("lifecycle manager closed")
)

// Default lifecycle timings.
const (
	DefaultDestroyTimeout    = 10 * time.Second
	DefaultCoolDown          = 3 * time.Second
	DefaultFailureBackoff    = 10 * time.Second
	DefaultAutoRestartDelay  = 5 * time.Second
	DefaultInitializeTimeout = 60 * time.Second
	DefaultMaxAttempts       = 3
)

// Config tunes the restart procedure.
type Config struct {
	// DestroyTimeout bounds teardown of the old transport.
	DestroyTimeout time.Duration
	// CoolDown is the pause between teardown and construction.
	CoolDown time.Duration
	// FailureBackoff is the delay before retrying a failed restart.
	FailureBackoff time.Duration
	// AutoRestartDelay is the delay before a restart triggered by an
	// authentication failure or a session-closed disconnect.
	AutoRestartDelay time.Duration
	// InitializeTimeout bounds the transport's Initialize call.
	InitializeTimeout time.Duration
	// MaxAttempts is the ceiling on consecutive failed connection attempts,
	// and separately on consecutive automatic restarts without reaching
	// ready, after which automatic restarts stop.
	MaxAttempts int
}

// DefaultConfig returns the standard restart timings.
func DefaultConfig() Config {
	return Config{
		DestroyTimeout:    DefaultDestroyTimeout,
		CoolDown:          DefaultCoolDown,
		FailureBackoff:    DefaultFailureBackoff,
		AutoRestartDelay:  DefaultAutoRestartDelay,
		InitializeTimeout: DefaultInitializeTimeout,
		MaxAttempts:       DefaultMaxAttempts,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DestroyTimeout <= 0 {
		c.DestroyTimeout = d.DestroyTimeout
	}
	if c.CoolDown < 0 {
		c.CoolDown = 0
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.AutoRestartDelay <= 0 {
		c.AutoRestartDelay = d.AutoRestartDelay
	}
	if c.InitializeTimeout <= 0 {
		c.InitializeTimeout = d.InitializeTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
}

// TransportFactory constructs a fresh transport instance.
type TransportFactory func() (interfaces.IMessagingTransport, error)

// StateListener observes committed transitions, in order.
type StateListener func(prev, next ConnectionState)

// MessageListener receives inbound messages from the current transport.
type MessageListener func(msg *interfaces.InboundMessage)

// Stats counts lifecycle activity since the manager was created.
type Stats struct {
	RestartsRequested int `json:"restartsRequested"`
	RestartsCoalesced int `json:"restartsCoalesced"`
	RestartsSucceeded int `json:"restartsSucceeded"`
	RestartsFailed    int `json:"restartsFailed"`
	RestartsScheduled int `json:"restartsScheduled"`
	DestroyTimeouts   int `json:"destroyTimeouts"`
	EventsDropped     int `json:"eventsDropped"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithConfig overrides the restart timings.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithTimeProvider injects the clock used for cool-downs and scheduled
// restarts.
func WithTimeProvider(tp interfaces.TimeProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.clock = tp
		}
	}
}

// Manager owns the messaging transport: it is the only component that
// constructs or destroys instances, it translates transport events into
// ConnectionState transitions, and it runs the restart procedure.
type Manager struct {
	cfg     Config
	factory TransportFactory
	clock   interfaces.TimeProvider

	// transitionMu serialises commit+notify so listeners observe transitions
	// in the order they were applied.
	transitionMu sync.Mutex

	mu             sync.Mutex
	state          ConnectionState
	transport      interfaces.IMessagingTransport
	pendingRestart interfaces.Timer
	stats          Stats
	closed         bool
	listeners      []StateListener
	onMessage      MessageListener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager in the DISCONNECTED phase. No transport is
// constructed until Start.
func NewManager(factory TransportFactory, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     DefaultConfig(),
		factory: factory,
		clock:   interfaces.DefaultTimeProvider{},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg.applyDefaults()
	m.state = ConnectionState{
		Phase:            PhaseDisconnected,
		LastTransitionAt: m.clock.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewManager",
		"destroy_timeout": m.cfg.DestroyTimeout,
		"cool_down":       m.cfg.CoolDown,
		"max_attempts":    m.cfg.MaxAttempts,
	}).Info("Created connection lifecycle manager")

	return m
}

// OnStateChange registers a listener for committed transitions. Listeners run
// synchronously on the goroutine that applied the transition and must not
// call Restart or Start.
func (m *Manager) OnStateChange(listener StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// OnMessage registers the inbound message listener.
func (m *Manager) OnMessage(listener MessageListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = listener
}

// Snapshot returns a copy of the current state. It never blocks on transport
// activity.
func (m *Manager) Snapshot() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Stats returns lifecycle counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Transport returns the live transport instance, or nil while none exists.
// Callers must not retain the result across calls.
func (m *Manager) Transport() interfaces.IMessagingTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// Config returns the effective restart timings.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start constructs and initializes the first transport. A failure is absorbed
// into the state machine exactly like a failed restart.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.transitionMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.transitionMu.Unlock()
		return ErrClosed
	}
	if m.transport != nil || m.state.RestartInProgress {
		m.mu.Unlock()
		m.transitionMu.Unlock()
		return ErrAlreadyStarted
	}
	m.state.RestartInProgress = true
	m.mu.Unlock()
	m.transitionMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Start",
	}).Info("Starting messaging transport")

	err := m.connect(m.ctx)
	return m.finishRestart(err, false)
}

// Close stops scheduled restarts and destroys the current transport.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopPendingRestartLocked()
	tr := m.transport
	m.transport = nil
	m.state.Generation++
	m.mu.Unlock()

	m.cancel()
	m.destroy(ctx, tr)
	m.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Close",
	}).Info("Lifecycle manager closed")
	return nil
}

// attachHandlers is the single place transport subscriptions are made. The
// handler is bound to the generation the transport was installed with, so
// events from a superseded instance are dropped.
func (m *Manager) attachHandlers(gen uint64, tr interfaces.IMessagingTransport) {
	tr.Subscribe(func(ev interfaces.Event) {
		m.handleEvent(gen, ev)
	})
}

// handleEvent applies one transport event.
func (m *Manager) handleEvent(gen uint64, ev interfaces.Event) {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if m.closed || gen != m.state.Generation {
		m.stats.EventsDropped++
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":   "Manager.handleEvent",
			"event":      ev.Type,
			"generation": gen,
		}).Debug("Dropping event from superseded transport")
		return
	}

	prev := m.state
	next, act := apply(prev, ev, m.clock.Now())
	m.state = next
	if act == actionScheduleRestart {
		m.scheduleRestartLocked(m.cfg.AutoRestartDelay, string(ev.Type))
	}
	listeners := append([]StateListener(nil), m.listeners...)
	onMessage := m.onMessage
	committed := m.state.clone()
	m.mu.Unlock()

	if ev.Type == interfaces.EventMessage {
		if onMessage != nil && ev.Message != nil {
			onMessage(ev.Message)
		}
		return
	}

	fields := logrus.Fields{
		"function": "Manager.handleEvent",
		"event":    ev.Type,
		"from":     prev.Phase.String(),
		"to":       committed.Phase.String(),
		"attempts": committed.ConnectionAttempts,
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}
	logrus.WithFields(fields).Info("Applied transport event")

	m.notify(listeners, prev.clone(), committed)
}

func (m *Manager) notify(listeners []StateListener, prev, next ConnectionState) {
	for _, l := range listeners {
		l(prev, next)
	}
}

// commit applies mutate to the state under the transition lock and notifies
// listeners.
func (m *Manager) commit(mutate func(s *ConnectionState)) ConnectionState {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	prev := m.state.clone()
	mutate(&m.state)
	if m.state.Phase != prev.Phase {
		m.state.LastTransitionAt = m.clock.Now()
	}
	next := m.state.clone()
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, prev, next)
	return next
}

// scheduleRestartLocked arms one delayed restart. At most one is pending at a
// time. None is armed once either the failed-attempt count or the count of
// automatic restarts since the last ready reaches MaxAttempts; the second
// bound stops an instance that initializes fine but keeps dropping its session.
func (m *Manager) scheduleRestartLocked(delay time.Duration, trigger string) {
	if m.closed {
		return
	}
	if m.pendingRestart != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.scheduleRestart",
			"trigger":  trigger,
		}).Debug("Restart already scheduled")
		return
	}
	if m.state.ConnectionAttempts >= m.cfg.MaxAttempts || m.state.AutoRestarts >= m.cfg.MaxAttempts {
		if m.state.Phase != PhaseError {
			m.state.LastTransitionAt = m.clock.Now()
		}
		m.state.Phase = PhaseError
		m.state.QRChallenge = ""
		if m.state.ConnectionAttempts >= m.cfg.MaxAttempts {
			m.state.LastError = fmt.Sprintf("%v after %d attempts", ErrRestartCeiling, m.state.ConnectionAttempts)
		} else {
			m.state.LastError = fmt.Sprintf("%v after %d automatic restarts", ErrRestartCeiling, m.state.AutoRestarts)
		}
		logrus.WithFields(logrus.Fields{
			"function":      "Manager.scheduleRestart",
			"trigger":       trigger,
			"attempts":      m.state.ConnectionAttempts,
			"auto_restarts": m.state.AutoRestarts,
			"ceiling":       m.cfg.MaxAttempts,
		}).Error("Restart ceiling reached, manual intervention required")
		return
	}

	m.state.AutoRestarts++
	m.stats.RestartsScheduled++
	m.wg.Add(1)
	m.pendingRestart = m.clock.AfterFunc(delay, func() {
		defer m.wg.Done()
		m.mu.Lock()
		m.pendingRestart = nil
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		if err := m.Restart(m.ctx); err != nil && !errors.Is(err, ErrRestartInProgress) {
			logrus.WithFields(logrus.Fields{
				"function": "Manager.scheduledRestart",
				"trigger":  trigger,
				"error":    err.Error(),
			}).Warn("Scheduled restart failed")
		}
	})

	logrus.WithFields(logrus.Fields{
		"function": "Manager.scheduleRestart",
		"trigger":  trigger,
		"delay":    delay,
		"attempts": m.state.ConnectionAttempts,
	}).Info("Scheduled transport restart")
}

func (m *Manager) stopPendingRestartLocked() {
	if m.pendingRestart == nil {
		return
	}
	if m.pendingRestart.Stop() {
		m.wg.Done()
	}
	m.pendingRestart = nil
}
