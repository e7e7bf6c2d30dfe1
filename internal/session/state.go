package session

import (
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// State is the controller's lifecycle position.
type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Paused:
		return "Paused"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// Snapshot is a read-only copy of the current session.
type Snapshot struct {
	ID          string                    `json:"id,omitempty"`
	State       string                    `json:"state"`
	MeetingName string                    `json:"meeting_name,omitempty"`
	Objective   string                    `json:"objective,omitempty"`
	StartTime   time.Time                 `json:"start_time"`
	EndTime     time.Time                 `json:"end_time"`
	TokensUsed  int64                     `json:"tokens_used"`
	IsRecording bool                      `json:"is_recording"`
	IsPaused    bool                      `json:"is_paused"`
	Transcript  []transcript.Entry        `json:"transcript"`
	Analysis    map[string]analysis.Value `json:"analysis"`
}
