// Package real provides the production messaging transport for courier.
//
// [BridgeTransport] implements interfaces.IMessagingTransport by speaking a
// small JSON protocol over a WebSocket to an automation worker. The worker
// owns the headless browser that runs the messaging web client; this package
// only relays calls and events.
//
// # Architecture
//
//	┌──────────────────────────────┐
//	│       BridgeTransport        │
//	│  ┌──────────┐ ┌───────────┐  │
//	│  │ pending  │ │ read loop │  │
//	│  │ requests │ │ (events)  │  │
//	│  └──────────┘ └───────────┘  │
//	└──────────────┬───────────────┘
//	               │ ws / wss
//	               ▼
//	┌──────────────────────────────┐
//	│  automation worker (browser) │
//	└──────────────────────────────┘
//
// # Wire Format
//
// Requests carry a UUID so responses can be matched out of order:
//
//	→ {"id":"8f6c…","method":"sendMessage","params":{"to":"…@c.us","payload":{"text":"hi"}}}
//	← {"id":"8f6c…","result":{"id":"true_…","timestamp":"…","ack":1}}
//	← {"id":"8f6c…","error":{"code":"SESSION_CLOSED","message":"Target closed"}}
//
// Events have no id and are dispatched to subscribers in arrival order:
//
//	← {"event":"qr","data":{"qr":"2@…"}}
//	← {"event":"authenticated","data":{"session":"<base64>"}}
//	← {"event":"ready","data":{"info":{"address":"…@c.us"}}}
//	← {"event":"disconnected","data":{"reason":"NAVIGATION"}}
//
// A response error with code SESSION_CLOSED matches interfaces.ErrSessionClosed
// under errors.Is. If the WebSocket drops unexpectedly, pending calls fail
// with interfaces.ErrSessionClosed and subscribers receive a disconnected
// event whose reason marks the session as closed.
//
// # Session Persistence
//
// On Initialize the stored credential for the configured client id is loaded
// from the session.Store and handed to the worker. When the worker reports
// authenticated with a credential blob, the blob is saved back.
//
// # Usage
//
//	tr := real.NewBridgeTransport(&interfaces.TransportConfig{
//	    BridgeURL:   "ws://127.0.0.1:9229/bridge",
//	    ClientID:    "admin-panel",
//	    CallTimeout: 30 * time.Second,
//	}, store)
//
// Transports are normally constructed by the factory package on behalf of the
// lifecycle manager, which alone decides when to create and destroy them.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes to the socket are
// serialised; event handlers run on the read loop goroutine and must not call
// Destroy.
package real
