// Package httpapi exposes a messaging channel over HTTP for the admin panel.
//
// Handlers are thin: they decode a JSON body, call the channel and map its
// typed errors onto status codes. Invalid targets and payloads are 400, a
// channel that is not ready is 503, a send that failed after retries is 502,
// and a restart request that joined one already in flight is 202.
package httpapi
