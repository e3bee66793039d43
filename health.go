package courier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
)

// HealthStatus classifies the outcome of HealthCheck.
type HealthStatus string

const (
	HealthHealthy       HealthStatus = "healthy"
	HealthUnhealthy     HealthStatus = "unhealthy"
	HealthSessionClosed HealthStatus = "session_closed"
	HealthNotReady      HealthStatus = "not_ready"
	HealthUnknown       HealthStatus = "unknown"
)

// Remediation hints reported by HealthCheck.
const (
	HintScanQR          = "QR available, needs scanning"
	HintRestart         = "restart recommended"
	HintResetSession    = "authentication failed, reset the session and scan a new QR"
	HintCeilingReached  = "automatic restarts exhausted, restart manually or reset the session"
	HintRestartInFlight = "restart in progress, check again shortly"
	HintWaitForReady    = "authenticated, waiting for the client to finish loading"
)

// connectedEngineState is the raw engine state of a working client.
const connectedEngineState = "CONNECTED"

// Health is the result of HealthCheck.
type Health struct {
	Status         HealthStatus `json:"status"`
	State          State        `json:"state"`
	TransportState string       `json:"transportState,omitempty"`
	ProbeError     string       `json:"probeError,omitempty"`
	Hints          []string     `json:"hints"`
	CheckedAt      time.Time    `json:"checkedAt"`
}

// HealthCheck combines the state snapshot with a liveness probe against the
// transport. It never panics and never returns an error: anything that goes
// wrong is reported as a status and a probe error.
func (c *Channel) HealthCheck(ctx context.Context) (h Health) {
	h.CheckedAt = c.clock.Now()
	h.Status = HealthUnknown
	h.Hints = []string{}
	defer func() {
		if r := recover(); r != nil {
			h.Status = HealthUnknown
			h.ProbeError = fmt.Sprintf("health check panicked: %v", r)
			logrus.WithFields(logrus.Fields{
				"function": "Channel.HealthCheck",
				"panic":    fmt.Sprint(r),
			}).Error("Health check panicked")
		}
	}()

	h.State = c.State()
	s := h.State.ConnectionState
	h.Hints = stateHints(s, c.manager.Config().MaxAttempts)

	switch {
	case s.SessionClosed:
		h.Status = HealthSessionClosed
		return h
	case !s.IsReady():
		h.Status = HealthNotReady
		return h
	}

	engineState, err := c.probe(ctx)
	h.TransportState = engineState
	switch {
	case err != nil && interfaces.IsSessionClosed(err):
		h.Status = HealthSessionClosed
		h.ProbeError = err.Error()
		h.Hints = appendHint(h.Hints, HintRestart)
	case err != nil:
		h.Status = HealthUnhealthy
		h.ProbeError = err.Error()
		h.Hints = appendHint(h.Hints, HintRestart)
	case !strings.EqualFold(strings.TrimSpace(engineState), connectedEngineState):
		h.Status = HealthUnhealthy
		h.Hints = appendHint(h.Hints, HintRestart)
	default:
		h.Status = HealthHealthy
	}

	if h.Status != HealthHealthy {
		logrus.WithFields(logrus.Fields{
			"function":     "Channel.HealthCheck",
			"status":       string(h.Status),
			"engine_state": engineState,
			"probe_error":  h.ProbeError,
		}).Warn("Transport liveness probe failed")
	}
	return h
}

var errProbeTimeout = errors.New("liveness probe timed out")

// probe asks the live transport for its raw state under the probe timeout. A
// transport that panics or hangs yields an error rather than blocking.
func (c *Channel) probe(ctx context.Context) (string, error) {
	tr, err := c.transport()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.options.HealthProbeTimeout)
	defer cancel()

	type result struct {
		state string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("transport probe panicked: %v", r)}
			}
		}()
		state, err := tr.State(ctx)
		done <- result{state: state, err: err}
	}()

	select {
	case res := <-done:
		return res.state, res.err
	case <-ctx.Done():
		return "", errProbeTimeout
	}
}

func stateHints(s lifecycle.ConnectionState, maxAttempts int) []string {
	hints := []string{}
	switch s.Phase {
	case lifecycle.PhaseQRPending:
		hints = appendHint(hints, HintScanQR)
	case lifecycle.PhaseAuthenticated:
		hints = appendHint(hints, HintWaitForReady)
	case lifecycle.PhaseAuthFailed:
		hints = appendHint(hints, HintResetSession)
	case lifecycle.PhaseRestarting:
		hints = appendHint(hints, HintRestartInFlight)
	case lifecycle.PhaseDisconnected, lifecycle.PhaseError:
		hints = appendHint(hints, HintRestart)
	}
	if s.SessionClosed && !s.RestartInProgress {
		hints = appendHint(hints, HintRestart)
	}
	if maxAttempts > 0 && (s.ConnectionAttempts >= maxAttempts || s.AutoRestarts >= maxAttempts) {
		hints = appendHint(hints, HintCeilingReached)
	}
	return hints
}

func appendHint(hints []string, hint string) []string {
	if slices.Contains(hints, hint) {
		return hints
	}
	return append(hints, hint)
}
