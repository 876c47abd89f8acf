package httpserver

import "time"

// ShutdownTimeout controls how long in-flight requests, including streams, may
// run after a shutdown signal.
var ShutdownTimeout = 15 * time.Second
