// Package meeting builds the persisted record of a finished session.
package meeting

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// Layouts for the persisted date and clock fields.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
	ZeroClock   = "00:00:00"
)

// FieldNames lists the persisted fields in storage order.
var FieldNames = []string{
	"meeting_title", "date", "start_time", "end_time", "duration",
	"full_transcript", "summary", "tokens_used",
}

// Record is a finished meeting. (Title, Date) identifies it for upserts.
type Record struct {
	Title          string `json:"meeting_title" bson:"meeting_title"`
	Date           string `json:"date" bson:"date"`
	StartTime      string `json:"start_time" bson:"start_time"`
	EndTime        string `json:"end_time" bson:"end_time"`
	Duration       string `json:"duration" bson:"duration"`
	FullTranscript string `json:"full_transcript" bson:"full_transcript"`
	Summary        string `json:"summary" bson:"summary"`
	TokensUsed     int64  `json:"tokens_used" bson:"tokens_used"`
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Info is the session data a Record is built from.
type Info struct {
	Title      string
	Start      time.Time
	End        time.Time
	TokensUsed int64
}

// NewRecord assembles a record. Date and clocks use the start time's
// location, falling back to now when the session never started.
func NewRecord(info Info, entries []transcript.Entry, summary string) Record {
	day := info.Start
	if day.IsZero() {
		day = time.Now()
	}
	return Record{
		Title:          info.Title,
		Date:           day.Format(DateLayout),
		StartTime:      clock(info.Start),
		EndTime:        clock(info.End),
		Duration:       FormatDuration(info.Start, info.End),
		FullTranscript: FlattenTranscript(entries),
		Summary:        summary,
		TokensUsed:     info.TokensUsed,
	}
}

func clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ClockLayout)
}

// FormatDuration renders end-start as HH:MM:SS. It returns 00:00:00 when
// either time is unset or end precedes start.
func FormatDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return ZeroClock
	}
	secs := int64(end.Sub(start) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// FlattenTranscript renders entries as "[HH:MM:SS] Speaker <id>: <text>" lines.
func FlattenTranscript(entries []transcript.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := e.SpeakerID
		if speaker == "" {
			speaker = transcript.UnknownSpeaker
		}
		fmt.Fprintf(&b, "[%s] Speaker %s: %s", e.Timestamp.Format(ClockLayout), speaker, e.Text)
	}
	return strings.TrimSpace(b.String())
}

// Fields returns the record's values in storage order.
func (r Record) Fields() []Field {
	return []Field{
		{"meeting_title", r.Title},
		{"date", r.Date},
		{"start_time", r.StartTime},
		{"end_time", r.EndTime},
		{"duration", r.Duration},
		{"full_transcript", r.FullTranscript},
		{"summary", r.Summary},
		{"tokens_used", r.TokensUsed},
	}
}

// Validate checks the record can be stored.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return apperrors.New(apperrors.CodeValidation, "missing field 'meeting_title'")
	case r.Date == "":
		return apperrors.New(apperrors.CodeValidation, "missing field 'date'")
	case r.Duration == "":
		return apperrors.New(apperrors.CodeValidation, "missing field 'duration'")
	case r.TokensUsed < 0:
		return apperrors.New(apperrors.CodeValidation, "tokens_used must not be negative")
	}
	return nil
}
