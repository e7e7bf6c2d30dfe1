// Package pipeline turns audio segments into transcript entries and drives
// the analyzers on a fixed flush window.
package pipeline

import "time"

// Pipeline defaults
const (
	DefaultWorkers       = 15
	DefaultFlushInterval = 5 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultTextQueueSize = 256
	DefaultLaneBuffer    = 64
)

// Journal steps
const (
	stepTranscription = "Transcription"
	stepAnalysis      = "Analysis Update"
	stepRateLimit     = "Rate Limit"
	stepCleanup       = "Temp File Cleanup"
)
