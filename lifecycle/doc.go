// Package lifecycle owns the messaging transport and its connection state
// machine.
//
// A [Manager] is the only component that constructs or destroys transport
// instances. It subscribes to every instance it creates, folds the resulting
// events into a [ConnectionState], and runs the restart procedure.
//
// # Phases
//
// The connection is always in exactly one [Phase]:
//
//	DISCONNECTED --qr--> QR_PENDING --authenticated--> AUTHENTICATED --ready--> CONNECTED
//	     any --auth_failure--> AUTH_FAILED   (schedules a delayed restart)
//	     any --disconnected--> DISCONNECTED  (schedules one if the reason is session-closed)
//	     any --error--> ERROR
//	     any --Restart--> RESTARTING --first event of new instance--> ...
//
// A QR challenge is only present in QR_PENDING, and the attempt counter is
// reset whenever the client becomes ready.
//
// # Restarts
//
// [Manager.Restart] is mutually exclusive. A second caller arriving while a
// restart is in flight gets [ErrRestartInProgress] immediately and no second
// teardown happens. The old instance is destroyed under a hard timeout, the
// manager waits a cool-down interval, and a new instance is constructed,
// subscribed and initialized. A failure counts as a connection attempt and
// arms a back-off restart until the attempt ceiling is reached; after that the
// phase stays ERROR until an operator restarts manually.
//
// Each installed instance gets a fresh generation number. Events carrying a
// stale generation are dropped, so a destroyed instance that keeps emitting
// cannot move the state machine.
//
// # Usage
//
//	mgr := lifecycle.NewManager(func() (interfaces.IMessagingTransport, error) {
//	    return factory.NewTransportFactory().CreateTransport(store)
//	})
//	mgr.OnStateChange(func(prev, next lifecycle.ConnectionState) {
//	    log.Printf("%s -> %s", prev.Phase, next.Phase)
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    log.Printf("initial connect failed, retry scheduled: %v", err)
//	}
//	defer mgr.Close(context.Background())
//
// Timings are injectable through [WithConfig] and [WithTimeProvider], which
// lets tests drive cool-downs and scheduled restarts without sleeping.
package lifecycle
