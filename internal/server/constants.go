// Package server exposes session control over HTTP and streams session
// events to websocket clients.
package server

import "time"

// Server configuration constants
const (
	// Inbound websocket control messages per connection
	RateLimitMessages = 10              // Max messages per window
	RateLimitWindow   = time.Second     // Sliding window duration
	WriteTimeout      = 5 * time.Second // Per-message websocket write deadline

	// Outbound events buffered per client before new ones are dropped
	ClientBuffer = 64

	// Request body limit for the control API
	MaxBodyBytes = 64 << 10
)
