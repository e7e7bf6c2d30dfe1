// Package sink delivers pipeline events to a user interface.
package sink

import (
	"log/slog"
	"sync/atomic"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/syncx"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// DefaultBuffer is the Dispatcher hand-off capacity.
const DefaultBuffer = 256

// Sink receives session events. Implementations run on whatever goroutine
// delivers to them; wrap them in a Dispatcher so emitters never block.
type Sink interface {
	OnTranscriptAppended(e transcript.Entry)
	OnSummaryUpdated(v analysis.Value)
	OnAnalysisUpdated(name string, v analysis.Value)
	OnRecordingStateChanged(state string)
	OnFinalStats(duration string, totalTokens int64)
	OnNotice(level slog.Level, message string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) OnTranscriptAppended(transcript.Entry)    {}
func (Nop) OnSummaryUpdated(analysis.Value)          {}
func (Nop) OnAnalysisUpdated(string, analysis.Value) {}
func (Nop) OnRecordingStateChanged(string)           {}
func (Nop) OnFinalStats(string, int64)               {}
func (Nop) OnNotice(slog.Level, string)              {}

// Multi fans each event out to every sink in order.
type Multi []Sink

func (m Multi) OnTranscriptAppended(e transcript.Entry) {
	for _, s := range m {
		s.OnTranscriptAppended(e)
	}
}

func (m Multi) OnSummaryUpdated(v analysis.Value) {
	for _, s := range m {
		s.OnSummaryUpdated(v)
	}
}

func (m Multi) OnAnalysisUpdated(name string, v analysis.Value) {
	for _, s := range m {
		s.OnAnalysisUpdated(name, v)
	}
}

func (m Multi) OnRecordingStateChanged(state string) {
	for _, s := range m {
		s.OnRecordingStateChanged(state)
	}
}

func (m Multi) OnFinalStats(duration string, totalTokens int64) {
	for _, s := range m {
		s.OnFinalStats(duration, totalTokens)
	}
}

func (m Multi) OnNotice(level slog.Level, message string) {
	for _, s := range m {
		s.OnNotice(level, message)
	}
}

// Dispatcher hands every event to one owned goroutine that calls the
// wrapped sink. Transcript and analysis updates never block: when the
// buffer is full they are dropped and counted. State changes, notices and
// final stats wait for room so a lagging UI still sees the session end.
type Dispatcher struct {
	next    Sink
	lane    *syncx.Serial
	dropped atomic.Int64
	onDrop  func()
}

// NewDispatcher wraps next. onDrop, if set, is called for every dropped event.
func NewDispatcher(next Sink, buffer int, onDrop func()) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Dispatcher{next: next, lane: syncx.NewSerial("ui-sink", buffer), onDrop: onDrop}
}

func (d *Dispatcher) emit(event string, fn func()) {
	if d.lane.TrySubmit(fn) {
		return
	}
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
	slog.Debug("ui event dropped", "event", event)
}

// deliver queues fn, waiting while the buffer is full.
func (d *Dispatcher) deliver(event string, fn func()) {
	if !d.lane.Submit(fn) {
		slog.Debug("ui event after close", "event", event)
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Flush waits until every queued event has been delivered.
func (d *Dispatcher) Flush() { d.lane.Wait() }

// Close delivers queued events and stops the goroutine.
func (d *Dispatcher) Close() { d.lane.Close() }

func (d *Dispatcher) OnTranscriptAppended(e transcript.Entry) {
	d.emit("transcript", func() { d.next.OnTranscriptAppended(e) })
}

func (d *Dispatcher) OnSummaryUpdated(v analysis.Value) {
	d.emit("summary", func() { d.next.OnSummaryUpdated(v) })
}

func (d *Dispatcher) OnAnalysisUpdated(name string, v analysis.Value) {
	d.emit("analysis", func() { d.next.OnAnalysisUpdated(name, v) })
}

func (d *Dispatcher) OnRecordingStateChanged(state string) {
	d.deliver("state", func() { d.next.OnRecordingStateChanged(state) })
}

func (d *Dispatcher) OnFinalStats(duration string, totalTokens int64) {
	d.deliver("final_stats", func() { d.next.OnFinalStats(duration, totalTokens) })
}

func (d *Dispatcher) OnNotice(level slog.Level, message string) {
	d.deliver("notice", func() { d.next.OnNotice(level, message) })
}
