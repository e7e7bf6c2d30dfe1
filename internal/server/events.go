package server

import (
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/session"
)

// EventVersion is bumped on incompatible event changes.
const EventVersion = 1

// Event types sent to clients.
const (
	TypeSnapshot   = "snapshot"
	TypeTranscript = "transcript"
	TypeSummary    = "summary"
	TypeAnalysis   = "analysis"
	TypeState      = "state"
	TypeFinalStats = "final_stats"
	TypeNotice     = "notice"
	TypeError      = "error"
)

// Control message types accepted from clients.
const (
	ControlStart  = "start"
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlStop   = "stop"
)

// Message is the envelope every inbound message shares.
type Message struct {
	Type string `json:"type"`
}

// ControlMessage drives the session from a websocket client.
type ControlMessage struct {
	Type        string `json:"type"`
	MeetingName string `json:"meeting_name,omitempty"`
	Objective   string `json:"objective,omitempty"`
}

// Event is the header of every outbound event.
type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SnapshotEvent struct {
	Event
	Session session.Snapshot `json:"session"`
}

type TranscriptEvent struct {
	Event
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	At      string `json:"at"`
}

type AnalysisEvent struct {
	Event
	Analyzer string   `json:"analyzer"`
	Text     string   `json:"text,omitempty"`
	Items    []string `json:"items,omitempty"`
}

type StateEvent struct {
	Event
	State string `json:"state"`
}

type FinalStatsEvent struct {
	Event
	Duration    string `json:"duration"`
	TotalTokens int64  `json:"total_tokens"`
}

type NoticeEvent struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

type ErrorEvent struct {
	Event
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
