// Package retry is the single place retry decisions are made for channel
// operations.
//
// [Do] retries only failures of the session-closed class (see
// interfaces.IsSessionClosed). Between attempts it waits
// min(BaseBackoff*attempt, MaxBackoff), asks the supplied [HealthFunc] whether
// the channel is usable, and if not triggers a restart through the supplied
// [RestartFunc] and waits a settle interval. Invalid input and other
// permanent failures are returned on the first attempt.
//
//	p := retry.DefaultPolicy()
//	p.Health = func() (bool, bool) {
//	    s := mgr.Snapshot()
//	    return s.IsReady(), s.SessionClosed
//	}
//	p.Restart = mgr.Restart
//	msg, err := retry.Do(ctx, p, "send", func(ctx context.Context) (*interfaces.SentMessage, error) {
//	    return mgr.Transport().SendMessage(ctx, to, payload, opts)
//	})
package retry
