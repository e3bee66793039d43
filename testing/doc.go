// Package testing provides simulation infrastructure for deterministic
// testing of courier.
//
// # Overview
//
// [SimulatedTransport] implements interfaces.IMessagingTransport entirely in
// memory. It mirrors the lifecycle of the browser-automation bridge (package
// real) without a browser, so lifecycle, retry and facade logic can be tested
// reproducibly.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): events are scripted and emitted
//     synchronously, sends are logged in memory.
//
//   - Real (real package): events and calls travel over a WebSocket to the
//     automation worker that drives the messaging web client.
//
// Both satisfy interfaces.IMessagingTransport and are selected via the
// factory package.
//
// # Usage
//
//	sim := testing.NewSimulatedTransport(&interfaces.TransportConfig{
//	    UseSimulation: true,
//	    ClientID:      "admin-panel",
//	    CallTimeout:   time.Second,
//	})
//
//	// Require a QR scan instead of the default immediate ready.
//	sim.SetInitScript(interfaces.Event{Type: interfaces.EventQR, QR: "2@abc"})
//
//	// Fail the next send with a session-closed error.
//	sim.FailNextSends(interfaces.ErrSessionClosed)
//
//	// Later, simulate the scan completing.
//	sim.Emit(interfaces.Event{Type: interfaces.EventAuthenticated})
//	sim.Emit(interfaces.Event{Type: interfaces.EventReady})
//
// # Send Log
//
// Every SendMessage call is recorded as a [SendRecord]. Use SentMessages to
// inspect the log during verification.
//
// # Manual Clock
//
// [ManualClock] implements interfaces.TimeProvider for tests that need to
// control cool-downs, back-offs and scheduled restarts:
//
//	clk := testing.NewManualClock(time.Unix(0, 0))
//	mgr := lifecycle.NewManager(newTransport, lifecycle.WithTimeProvider(clk))
//	clk.Advance(5 * time.Second) // fires the scheduled restart
//
// # Thread Safety
//
// All methods on SimulatedTransport and ManualClock are safe for concurrent
// use. Event handlers are invoked without internal locks held.
package testing
