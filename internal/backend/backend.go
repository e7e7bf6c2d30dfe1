// Package backend defines the inference collaborators the pipeline depends
// on and provides OpenAI and gRPC sidecar implementations.
package backend

import "context"

// Audio is one segment handed to a backend. WAVPath points at a temporary
// WAV rendering of PCM when the caller has written one.
type Audio struct {
	PCM        []byte
	WAVPath    string
	SampleRate int
	Channels   int
}

// Prompt is a three-role chat prompt.
type Prompt struct {
	System    string
	Assistant string
	User      string
}

// Completion is a generated text and the tokens it cost.
type Completion struct {
	Text       string
	TokensUsed int64
}

// Transcriber turns speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Summarizer runs a chat completion.
type Summarizer interface {
	GenerateSummary(ctx context.Context, p Prompt) (Completion, error)
}

// SpeakerIdentifier names the voice in a segment. An empty id means unknown.
type SpeakerIdentifier interface {
	IdentifySpeaker(ctx context.Context, audio Audio) (string, error)
}
