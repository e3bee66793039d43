// Package interfaces defines the core abstractions shared by the courier
// packages: the messaging transport contract, its lifecycle event model, the
// session-closed error taxonomy and an injectable time source.
//
// This package provides the foundational interfaces that enable switching
// between the simulated transport (package testing) and the browser-automation
// bridge (package real), supporting both production deployments and
// deterministic testing.
//
// # Core Interfaces
//
// [IMessagingTransport] is the contract every messaging client implementation
// satisfies. It is treated as unreliable: any call may fail with an error of
// the session-closed class at any time, including mid-operation.
//
//	tr, err := factory.NewTransportFactory().CreateTransport(store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tr.Subscribe(func(ev interfaces.Event) {
//	    log.Printf("transport event: %s", ev.Type)
//	})
//	if err := tr.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Only the lifecycle manager constructs and destroys transports; every other
// component reaches the live instance through it.
//
// # Events
//
// Lifecycle events are delivered at-least-once and never replayed:
//
//   - [EventQR]: a QR challenge was issued and must be scanned
//   - [EventAuthenticated]: the credential was accepted
//   - [EventReady]: the client finished loading and can send
//   - [EventAuthFailure]: the credential was rejected
//   - [EventDisconnected]: the client lost its connection
//   - [EventStateChanged]: the engine reported a raw state string
//   - [EventError]: the engine reported a fatal error
//   - [EventMessage]: an inbound message arrived
//
// # Error Classification
//
// [IsSessionClosed] decides whether an error belongs to the retryable
// "session terminated" class. It matches [ErrSessionClosed] through the error
// chain and falls back to the messages browser-automation engines produce when
// their page or target dies:
//
//	if interfaces.IsSessionClosed(err) {
//	    // retry, possibly after a restart
//	}
//
// # Time
//
// [TimeProvider] abstracts clocks, sleeps and timers so the lifecycle and
// retry code can be driven deterministically in tests.
package interfaces
