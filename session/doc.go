// Package session persists the messaging client's authentication credential
// across process restarts.
//
// The credential is an opaque blob handed back by the automation engine after
// a successful QR scan. It is stored under a client id scoped to one
// application instance; when no usable credential exists the engine issues a
// new QR challenge.
//
// Three [Store] implementations are provided:
//
//   - [MemoryStore]: process memory only, used by tests and simulation.
//   - [FileStore]: one file per client id, sealed with NaCl secretbox under a
//     PBKDF2-derived key, written atomically via rename.
//   - [SQLStore]: a SQLite table accessed through sqlx, using the cgo-free
//     modernc.org/sqlite driver.
//
// Usage:
//
//	store, err := session.NewFileStore("/var/lib/courier", []byte(passphrase))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	blob, err := store.Load(ctx, "admin-panel")
//	if errors.Is(err, session.ErrNotFound) {
//	    // a QR scan will be required
//	}
package session
