package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 5 * time.Second
	DefaultSettle      = 3 * time.Second
)

// HealthFunc reports whether the channel is ready and whether it has been
// flagged session-closed. It must not block on the transport.
type HealthFunc func() (ready, sessionClosed bool)

// RestartFunc triggers a transport restart. Returning
// lifecycle.ErrRestartInProgress means another caller already started one.
type RestartFunc func(ctx context.Context) error

// Policy controls how Do retries an operation.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// BaseBackoff is multiplied by the attempt number to get the wait before
	// the next attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// Settle is the wait after triggering a restart.
	Settle time.Duration

	Health  HealthFunc
	Restart RestartFunc
	Clock   interfaces.TimeProvider

	// OnRetry, if set, is called before each retry with the attempt that
	// just failed.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns a policy with the standard attempt count and timings.
// Health and Restart must still be supplied by the caller.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		Settle:      DefaultSettle,
		Clock:       interfaces.DefaultTimeProvider{},
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// min(BaseBackoff*attempt, MaxBackoff).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseBackoff * time.Duration(attempt)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Clock == nil {
		p.Clock = interfaces.DefaultTimeProvider{}
	}
	return p
}

// Do runs op, retrying only failures of the session-closed class. Before each
// retry it waits the back-off, then consults health and, if the channel is
// not ready or flagged session-closed, triggers a restart and waits the
// settle interval. Any other failure is returned immediately. After the last
// attempt the last error is returned.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logrus.WithFields(logrus.Fields{
					"function":  "retry.Do",
					"operation": name,
					"attempt":   attempt,
				}).Info("Operation succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !interfaces.IsSessionClosed(err) {
			logrus.WithFields(logrus.Fields{
				"function":  "retry.Do",
				"operation": name,
				"attempt":   attempt,
				"error":     err.Error(),
			}).Debug("Operation failed with non-retryable error")
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		logrus.WithFields(logrus.Fields{
			"function":  "retry.Do",
			"operation": name,
			"attempt":   attempt,
			"max":       p.MaxAttempts,
			"error":     err.Error(),
		}).Warn("Session closed during operation, retrying")
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if werr := p.Clock.Sleep(ctx, p.Backoff(attempt)); werr != nil {
			return zero, errors.Join(lastErr, werr)
		}
		if werr := p.heal(ctx, name); werr != nil {
			return zero, errors.Join(lastErr, werr)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "retry.Do",
		"operation": name,
		"attempts":  p.MaxAttempts,
		"error":     lastErr.Error(),
	}).Error("Operation failed after exhausting retries")
	return zero, lastErr
}

// heal restarts the channel when health says it is unusable. It only
// returns an error if ctx ends during the settle wait.
func (p Policy) heal(ctx context.Context, name string) error {
	if p.Health == nil {
		return nil
	}
	ready, sessionClosed := p.Health()
	if ready && !sessionClosed {
		return nil
	}

	if p.Restart != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "retry.heal",
			"operation":      name,
			"ready":          ready,
			"session_closed": sessionClosed,
		}).Info("Channel unhealthy, triggering restart")

		err := p.Restart(ctx)
		switch {
		case err == nil:
		case errors.Is(err, lifecycle.ErrRestartInProgress):
			logrus.WithFields(logrus.Fields{
				"function":  "retry.heal",
				"operation": name,
			}).Debug("Restart already in flight")
		default:
			logrus.WithFields(logrus.Fields{
				"function":  "retry.heal",
				"operation": name,
				"error":     err.Error(),
			}).Warn("Restart triggered by retry failed")
		}
	}
	return p.Clock.Sleep(ctx, p.Settle)
}
