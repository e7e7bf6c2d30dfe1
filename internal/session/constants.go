// Package session owns the recording lifecycle: it starts capture, the
// transcription pool and the scheduler, and finalizes the meeting record
// once recording stops.
package session

import "time"

// DefaultSettleDelay gives late backend responses a moment to land before
// the final polish. It is a heuristic, not a guarantee.
const DefaultSettleDelay = 2 * time.Second

// Journal steps.
const (
	stepStart       = "Start session"
	stepStop        = "Stop session"
	stepFinalPolish = "Final polish"
	stepValidate    = "Validate record"
	stepSave        = "Save to store"
	stepProfiles    = "Save voice profiles"
	stepDevice      = "Audio device"
)

// Session lifecycle events for the sessions metric.
const (
	eventStarted   = "started"
	eventStopped   = "stopped"
	eventFinalized = "finalized"
	eventRejected  = "rejected"
)
