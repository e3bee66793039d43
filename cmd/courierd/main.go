// Command courierd runs the messaging channel behind an HTTP API.
//
// Usage:
//
//	courierd serve --config /etc/courier/courier.yaml
//	courierd qr --addr http://127.0.0.1:8080
//	courierd version
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "courierd: %v\n", err)
		os.Exit(1)
	}
}
