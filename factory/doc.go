// Package factory creates messaging transport implementations for courier.
//
// The factory abstracts the choice between the simulated transport (package
// testing) and the WebSocket bridge to the automation worker (package real),
// so the lifecycle manager can construct a fresh instance on every restart
// without knowing which one it gets.
//
// # Configuration
//
// The factory supports configuration via environment variables:
//   - COURIER_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - COURIER_BRIDGE_URL: WebSocket URL of the automation worker
//   - COURIER_CLIENT_ID: client id the session credential is stored under
//   - COURIER_CALL_TIMEOUT: integer milliseconds for a single bridge call
//   - COURIER_HANDSHAKE_TIMEOUT: integer milliseconds for the WebSocket dial
//
// Malformed or out-of-bounds values are logged and ignored.
//
// # Usage
//
//	f := factory.NewTransportFactory()
//	mgr := lifecycle.NewManager(f.Constructor(store))
//
// Or create a transport directly:
//
//	tr, err := f.CreateTransport(store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Testing Support
//
// CreateSimulationForTesting returns a simulated transport with a short call
// timeout that tests can script:
//
//	sim := factory.NewTransportFactory().CreateSimulationForTesting()
//	sim.SetInitScript(interfaces.Event{Type: interfaces.EventQR, QR: "2@abc"})
package factory
