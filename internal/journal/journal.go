// Package journal appends the backend event log: one JSON object per line
// with level, timestamp, step and message.
package journal

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// TimestampLayout formats the timestamp field.
const TimestampLayout = "2006-01-02 15:04:05"

// Logger records pipeline steps.
type Logger interface {
	Log(step, message string)
	Error(step, message string)
}

// Journal writes events with zerolog.
type Journal struct {
	zl  zerolog.Logger
	mu  sync.Mutex
	out io.Closer
	now func() time.Time
}

// New writes events to w.
func New(w io.Writer) *Journal {
	return &Journal{zl: zerolog.New(w), now: time.Now}
}

// Open appends to the file at path, creating it and its directory.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeIO, "create %s", filepath.Dir(path))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeIO, "open %s", path)
	}
	j := New(f)
	j.out = f
	return j, nil
}

// Log records an informational step.
func (j *Journal) Log(step, message string) {
	j.write(j.zl.Info(), step, message)
}

// Error records a failed step.
func (j *Journal) Error(step, message string) {
	j.write(j.zl.Error(), step, message)
}

func (j *Journal) write(ev *zerolog.Event, step, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ev.Str("timestamp", j.now().Format(TimestampLayout)).
		Str("step", step).
		Msg(message)
}

// Close closes the underlying file, if Open created one.
func (j *Journal) Close() error {
	if j.out == nil {
		return nil
	}
	return j.out.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(string, string)   {}
func (Nop) Error(string, string) {}
