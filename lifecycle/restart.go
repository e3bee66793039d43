package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
)

// Restart tears the current transport down and constructs a replacement.
//
// Concurrent calls are coalesced: while a restart is in flight every other
// caller gets ErrRestartInProgress immediately and no second teardown happens.
// The procedure runs on the manager's own context, so cancelling ctx only
// affects whether the caller is still interested, not the restart itself.
// Manual restarts are accepted even after the automatic ceiling was reached.
func (m *Manager) Restart(ctx context.Context) error {
	m.transitionMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.transitionMu.Unlock()
		return ErrClosed
	}
	m.stats.RestartsRequested++
	if m.state.RestartInProgress {
		m.stats.RestartsCoalesced++
		m.mu.Unlock()
		m.transitionMu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Manager.Restart",
		}).Info("Restart already in progress, request coalesced")
		return ErrRestartInProgress
	}

	m.stopPendingRestartLocked()
	prev := m.state.clone()
	m.state.RestartInProgress = true
	m.state.Phase = PhaseRestarting
	m.state.QRChallenge = ""
	m.state.TransportState = ""
	m.state.LastTransitionAt = m.clock.Now()
	old := m.transport
	m.transport = nil
	// Bumping the generation detaches the old instance's handlers.
	m.state.Generation++
	next := m.state.clone()
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.Unlock()
	m.notify(listeners, prev, next)
	m.transitionMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Manager.Restart",
		"from":       prev.Phase.String(),
		"attempts":   prev.ConnectionAttempts,
		"generation": next.Generation,
	}).Info("Restarting messaging transport")

	m.destroy(m.ctx, old)

	if err := m.clock.Sleep(m.ctx, m.cfg.CoolDown); err != nil {
		return m.finishRestart(fmt.Errorf("cool-down interrupted: %w", err), true)
	}

	err := m.connect(m.ctx)
	if ctx.Err() != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.Restart",
		}).Debug("Restart caller went away before completion")
	}
	return m.finishRestart(err, true)
}

// destroy tears tr down, giving up after the configured destroy timeout. Errors
// and panics from the transport are logged and absorbed.
func (m *Manager) destroy(parent context.Context, tr interfaces.IMessagingTransport) {
	if tr == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.cfg.DestroyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("destroy panicked: %v", r)
			}
		}()
		done <- tr.Destroy(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Manager.destroy",
				"error":    err.Error(),
			}).Warn("Transport teardown failed, continuing")
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "Manager.destroy",
		}).Debug("Transport destroyed")
	case <-ctx.Done():
		m.mu.Lock()
		m.stats.DestroyTimeouts++
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Manager.destroy",
			"timeout":  m.cfg.DestroyTimeout,
		}).Warn("Transport teardown timed out, continuing")
	}
}

// connect constructs, subscribes and initializes a new transport. It is the
// only path that installs a transport.
func (m *Manager) connect(ctx context.Context) error {
	if m.factory == nil {
		return errors.New("no transport factory configured")
	}
	tr, err := m.factory()
	if err != nil {
		return fmt.Errorf("construct transport: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.destroy(context.Background(), tr)
		return ErrClosed
	}
	m.state.Generation++
	gen := m.state.Generation
	m.transport = tr
	m.mu.Unlock()

	m.attachHandlers(gen, tr)

	initCtx, cancel := context.WithTimeout(ctx, m.cfg.InitializeTimeout)
	defer cancel()
	if err := tr.Initialize(initCtx); err != nil {
		return fmt.Errorf("initialize transport: %w", err)
	}
	return nil
}

// finishRestart clears the in-flight guard and records the outcome. A failure
// counts as a connection attempt and arms a back-off restart while attempts
// remain under the ceiling.
func (m *Manager) finishRestart(err error, isRestart bool) error {
	if err == nil {
		m.commit(func(s *ConnectionState) {
			s.RestartInProgress = false
		})
		m.mu.Lock()
		if isRestart {
			m.stats.RestartsSucceeded++
		}
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Manager.finishRestart",
			"restart":  isRestart,
		}).Info("Messaging transport initialized")
		return nil
	}

	m.transitionMu.Lock()
	m.mu.Lock()
	prev := m.state.clone()
	m.state.RestartInProgress = false
	m.state.ConnectionAttempts++
	m.state.Phase = PhaseError
	m.state.QRChallenge = ""
	m.state.LastError = err.Error()
	if prev.Phase != PhaseError {
		m.state.LastTransitionAt = m.clock.Now()
	}
	if isRestart {
		m.stats.RestartsFailed++
	}
	attempts := m.state.ConnectionAttempts
	if !m.closed {
		m.scheduleRestartLocked(m.cfg.FailureBackoff, "restart_failure")
	}
	next := m.state.clone()
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.Unlock()
	m.notify(listeners, prev, next)
	m.transitionMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.finishRestart",
		"attempts": attempts,
		"ceiling":  m.cfg.MaxAttempts,
		"error":    err.Error(),
	}).Error("Failed to bring up messaging transport")
	return err
}
