// Package courier is the call surface of a long-lived messaging client
// connection.
//
// A [Channel] wraps a browser-automation driven messaging transport that can
// ask for a QR scan at any moment, lose its session without warning, and
// needs a full teardown and rebuild to recover. The channel hides that behind
// a small, stable API:
//
//   - [Channel.State] and [Channel.QRChallenge] expose the connection phase
//     and the pending QR challenge without touching the transport.
//   - [Channel.SendOne] and [Channel.SendBulk] send messages under the shared
//     retry policy; bulk sends are strictly sequential and paced.
//   - [Channel.QueryRegistration], [Channel.Chats], [Channel.ChatByID],
//     [Channel.GroupInviteCode] and [Channel.CreateGroup] query the network.
//   - [Channel.Restart] and [Channel.ResetSession] drive recovery by hand.
//   - [Channel.HealthCheck] and [Channel.Stats] report on the connection and
//     never fail.
//
// # Getting Started
//
//	f := factory.NewTransportFactory()
//	store := session.NewMemoryStore()
//
//	options := courier.NewOptions()
//	options.Factory = f.Constructor(store)
//	options.Store = store
//
//	ch, err := courier.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ch.Close(context.Background())
//
//	if err := ch.Start(ctx); err != nil {
//	    log.Printf("initial connect failed, retry scheduled: %v", err)
//	}
//
//	receipt, err := ch.SendOne(ctx, "+1 555 010 9999", interfaces.Payload{Text: "hi"}, courier.SendOptions{})
//
// # Readiness
//
// With StrictReadyCheck enabled, the default, operations fail fast with
// [ErrChannelNotReady] unless the phase is CONNECTED. Setting Lenient on a
// single call, or disabling the check, logs a warning and attempts the call
// anyway, relying on the retry policy to restart a dead session.
//
// # Retries
//
// Only errors of the session-closed class are retried. Before each retry the
// policy backs off, inspects the connection state and, if the channel is not
// ready, triggers a restart and waits for it to settle. Concurrent operations
// that all hit a dead session share a single restart. Input errors such as
// [ErrInvalidTarget] and [ErrInvalidPayload] are never retried.
//
// # Error Handling
//
// A send that still fails after the policy gives up is returned as a
// *[SendError], which matches [ErrSendFailed] and unwraps to the transport
// error:
//
//	var se *courier.SendError
//	if errors.As(err, &se) {
//	    log.Printf("gave up on %s after %d attempts", se.Target, se.Attempts)
//	}
//
// Every transport access dereferences the live instance through the
// lifecycle manager, so no caller ever holds a transport across a restart.
package courier
