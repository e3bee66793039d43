// Package config loads the courierd configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then COURIER_* environment variables. The session passphrase is never read
// from the file.
//
//	listen: 127.0.0.1:8080
//	log:
//	  level: debug
//	  format: json
//	transport:
//	  bridge_url: ws://127.0.0.1:9229/bridge
//	  call_timeout: 30s
//	session:
//	  backend: file
//	  path: /var/lib/courier
//	bulk:
//	  pacing: 2s
//	  continue_on_error: true
package config
