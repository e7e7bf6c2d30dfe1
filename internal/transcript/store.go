// Package transcript holds the append-only transcript of a recording session.
package transcript

import (
	"sync"
	"time"
)

// UnknownSpeaker is recorded when no speaker could be identified.
const UnknownSpeaker = "Unknown"

// Entry is one transcribed segment. Entries are never modified once appended.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	SpeakerID string    `json:"speaker_id"`
	Text      string    `json:"text"`
}

// Store is the session's FullTranscript. Entries appear in the order
// transcriptions complete, which may differ from recording order when
// several workers run at once.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStore creates an empty transcript.
func NewStore() *Store {
	return &Store{}
}

// Append adds an entry, defaulting an empty speaker to UnknownSpeaker.
func (s *Store) Append(e Entry) Entry {
	if e.SpeakerID == "" {
		e.SpeakerID = UnknownSpeaker
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return e
}

// Entries returns a snapshot copy.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset clears the transcript for a new session.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
