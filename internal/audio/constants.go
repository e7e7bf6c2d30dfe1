package audio

import "time"

// Capture defaults for mono 16-bit speech at 16 kHz.
const (
	DefaultSampleRate     = 16000
	DefaultChannels       = 1
	DefaultFramesPerRead  = 1024
	DefaultSegmentSeconds = 5.0
	DefaultOverlapSeconds = 0.5
	DefaultQueueSize      = 32

	BytesPerSample = 2

	// PausePollInterval is how long the capture loop idles per tick while paused.
	PausePollInterval = 100 * time.Millisecond

	// MaxConsecutiveReadErrors marks the device as lost.
	MaxConsecutiveReadErrors = 50

	readErrorBackoff = 10 * time.Millisecond
)
