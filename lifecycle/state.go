package lifecycle

import (
	"time"

	"github.com/opd-ai/courier/interfaces"
)

// Phase is the discrete state of the connection lifecycle.
type Phase uint8

const (
	// PhaseDisconnected is the initial phase and the phase after any
	// reported disconnection.
	PhaseDisconnected Phase = iota
	// PhaseQRPending means a QR challenge is waiting to be scanned.
	PhaseQRPending
	// PhaseAuthenticated means the credential was accepted but the client is
	// still loading.
	PhaseAuthenticated
	// PhaseConnected means the client is operational.
	PhaseConnected
	// PhaseAuthFailed means authentication was rejected.
	PhaseAuthFailed
	// PhaseError means a fatal error occurred or the restart ceiling was hit.
	PhaseError
	// PhaseRestarting means the transport is being torn down and rebuilt.
	PhaseRestarting
)

// String returns the canonical phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "DISCONNECTED"
	case PhaseQRPending:
		return "QR_PENDING"
	case PhaseAuthenticated:
		return "AUTHENTICATED"
	case PhaseConnected:
		return "CONNECTED"
	case PhaseAuthFailed:
		return "AUTH_FAILED"
	case PhaseError:
		return "ERROR"
	case PhaseRestarting:
		return "RESTARTING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the phase as its canonical name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ConnectionState is the canonical readiness record. It is owned by the
// Manager and only mutated through its event handlers and restart procedure;
// callers always receive copies.
type ConnectionState struct {
	Phase              Phase                  `json:"phase"`
	QRChallenge        string                 `json:"qrChallenge,omitempty"`
	LastTransitionAt   time.Time              `json:"lastTransitionAt"`
	ConnectionAttempts int                    `json:"connectionAttempts"`
	AutoRestarts       int                    `json:"autoRestarts"`
	RestartInProgress  bool                   `json:"restartInProgress"`
	SessionClosed      bool                   `json:"sessionClosed"`
	TransportState     string                 `json:"transportState,omitempty"`
	LastReason         string                 `json:"lastReason,omitempty"`
	LastError          string                 `json:"lastError,omitempty"`
	ClientInfo         *interfaces.ClientInfo `json:"clientInfo,omitempty"`
	Generation         uint64                 `json:"generation"`
}

// IsReady reports whether sends can be expected to succeed.
func (s ConnectionState) IsReady() bool {
	return s.Phase == PhaseConnected
}

// clone returns a deep copy safe to hand to callers.
func (s ConnectionState) clone() ConnectionState {
	if s.ClientInfo != nil {
		info := *s.ClientInfo
		s.ClientInfo = &info
	}
	return s
}

// action is a side effect requested by a transition.
type action uint8

const (
	actionNone action = iota
	actionScheduleRestart
)

// apply computes the state that follows ev. It is pure: the manager performs
// any requested action after committing the returned state.
//
// auth_failure is accepted from every phase, not only from QR_PENDING,
// AUTHENTICATED and CONNECTED. A stored credential is rejected before any QR
// is shown, so the event arrives while the phase is still DISCONNECTED or
// RESTARTING, and dropping it there would leave the connection waiting on an
// instance that has already given up.
func apply(s ConnectionState, ev interfaces.Event, now time.Time) (ConnectionState, action) {
	next := s
	act := actionNone

	switch ev.Type {
	case interfaces.EventQR:
		if ev.QR == "" {
			return s, actionNone
		}
		next.Phase = PhaseQRPending
		next.QRChallenge = ev.QR

	case interfaces.EventAuthenticated:
		next.Phase = PhaseAuthenticated
		next.QRChallenge = ""

	case interfaces.EventReady:
		next.Phase = PhaseConnected
		next.QRChallenge = ""
		next.ConnectionAttempts = 0
		next.AutoRestarts = 0
		next.SessionClosed = false
		next.LastError = ""
		if ev.Info != nil {
			info := *ev.Info
			next.ClientInfo = &info
		}

	case interfaces.EventAuthFailure:
		next.Phase = PhaseAuthFailed
		next.QRChallenge = ""
		next.ConnectionAttempts++
		next.LastReason = ev.Reason
		act = actionScheduleRestart

	case interfaces.EventDisconnected:
		next.Phase = PhaseDisconnected
		next.QRChallenge = ""
		next.LastReason = ev.Reason
		if interfaces.IsSessionClosedReason(ev.Reason) {
			next.SessionClosed = true
			act = actionScheduleRestart
		}

	case interfaces.EventError:
		next.QRChallenge = ""
		if ev.Err != nil {
			next.LastError = ev.Err.Error()
		}
		if interfaces.IsSessionClosed(ev.Err) {
			next.Phase = PhaseDisconnected
			next.SessionClosed = true
			act = actionScheduleRestart
		} else {
			next.Phase = PhaseError
		}

	case interfaces.EventStateChanged:
		next.TransportState = ev.State

	default:
		return s, actionNone
	}

	if next.Phase != s.Phase {
		next.LastTransitionAt = now
	}
	return next, act
}
