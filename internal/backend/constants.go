package backend

import "time"

// OpenAI defaults
const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultChatModel       = "gpt-4o-2024-08-06"
	DefaultTranscribeModel = "whisper-1"
	DefaultTemperature     = 0.1
	DefaultTimeout         = 60 * time.Second

	maxErrorBody = 4 << 10
)

// Sidecar defaults
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	SampleRateKey = "x-sample-rate"
)

// Sidecar method names.
const (
	inferenceService      = "meetscribe.inference.v1.Inference"
	MethodTranscribe      = "/" + inferenceService + "/Transcribe"
	MethodIdentifySpeaker = "/" + inferenceService + "/IdentifySpeaker"
	MethodGenerateSummary = "/" + inferenceService + "/GenerateSummary"
)
