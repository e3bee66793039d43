package courier

import (
	"time"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/retry"
	"github.com/opd-ai/courier/session"
)

// Default channel settings.
const (
	DefaultPacing             = 2 * time.Second
	DefaultNotReadyPause      = 10 * time.Second
	DefaultHealthProbeTimeout = 5 * time.Second
	DefaultClientID           = "courier"
)

// Options contains channel configuration.
type Options struct {
	// Factory builds a fresh transport for every (re)start. Required.
	Factory lifecycle.TransportFactory
	// Store holds the session credential. Only ResetSession needs it.
	Store session.Store
	// ClientID is the key the credential is stored under.
	ClientID string

	Lifecycle lifecycle.Config

	// StrictReadyCheck makes operations fail with ErrChannelNotReady while
	// the connection is not CONNECTED. When false they log a warning and
	// attempt the call anyway.
	StrictReadyCheck bool

	RetryAttempts int
	RetrySettle   time.Duration

	Bulk BulkPolicy

	HealthProbeTimeout time.Duration
	// QRSize is the PNG edge length used by QRChallenge.
	QRSize int

	TimeProvider interfaces.TimeProvider
}

// BulkPolicy is the channel-wide bulk send policy. SendBulk falls back to it
// for every option a call leaves unset.
type BulkPolicy struct {
	// Pacing is the minimum delay between consecutive sends.
	Pacing time.Duration `json:"pacing"`
	// ContinueOnError records a failed target and moves on. When false the
	// first failure aborts the batch and the remaining targets are skipped.
	ContinueOnError bool `json:"continueOnError"`
	// NotReadyPause is how long to wait before a send when the channel is
	// not ready.
	NotReadyPause time.Duration `json:"notReadyPause"`
}

// DefaultBulkPolicy returns the standard pacing and error policy.
func DefaultBulkPolicy() BulkPolicy {
	return BulkPolicy{
		Pacing:          DefaultPacing,
		ContinueOnError: true,
		NotReadyPause:   DefaultNotReadyPause,
	}
}

// BulkOptions holds per-call overrides for SendBulk. A nil field keeps the
// channel's BulkPolicy value, so the zero BulkOptions sends with the defaults.
type BulkOptions struct {
	Pacing          *time.Duration
	ContinueOnError *bool
	NotReadyPause   *time.Duration
	// Lenient overrides StrictReadyCheck for this batch.
	Lenient bool
}

// resolve merges the overrides onto base.
func (o BulkOptions) resolve(base BulkPolicy) BulkPolicy {
	p := base
	if o.Pacing != nil {
		p.Pacing = *o.Pacing
	}
	if o.ContinueOnError != nil {
		p.ContinueOnError = *o.ContinueOnError
	}
	if o.NotReadyPause != nil {
		p.NotReadyPause = *o.NotReadyPause
	}
	if p.Pacing < 0 {
		p.Pacing = 0
	}
	if p.NotReadyPause < 0 {
		p.NotReadyPause = 0
	}
	return p
}

// Ptr returns a pointer to v, for filling BulkOptions overrides inline.
func Ptr[T any](v T) *T {
	return &v
}

// NewOptions creates a new Options instance with default values. Factory must
// still be set.
func NewOptions() *Options {
	return &Options{
		ClientID:           DefaultClientID,
		Lifecycle:          lifecycle.DefaultConfig(),
		StrictReadyCheck:   true,
		RetryAttempts:      retry.DefaultMaxAttempts,
		RetrySettle:        retry.DefaultSettle,
		Bulk:               DefaultBulkPolicy(),
		HealthProbeTimeout: DefaultHealthProbeTimeout,
		TimeProvider:       interfaces.DefaultTimeProvider{},
	}
}
