package sink

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (r *recorder) add(ev string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnTranscriptAppended(e transcript.Entry)      { r.add("transcript:" + e.Text) }
func (r *recorder) OnSummaryUpdated(v analysis.Value)            { r.add("summary:" + v.Text) }
func (r *recorder) OnAnalysisUpdated(n string, _ analysis.Value) { r.add("analysis:" + n) }
func (r *recorder) OnRecordingStateChanged(s string)             { r.add("state:" + s) }
func (r *recorder) OnFinalStats(d string, _ int64)               { r.add("final:" + d) }
func (r *recorder) OnNotice(_ slog.Level, m string)              { r.add("notice:" + m) }

func TestDispatcherPreservesOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 16, nil)

	d.OnRecordingStateChanged("recording")
	d.OnTranscriptAppended(transcript.Entry{Text: "A."})
	d.OnSummaryUpdated(analysis.Value{Text: "S"})
	d.OnAnalysisUpdated("themes", analysis.Value{})
	d.OnNotice(slog.LevelWarn, "slow")
	d.OnFinalStats("00:00:05", 3)
	d.Close()

	want := []string{"state:recording", "transcript:A.", "summary:S", "analysis:themes", "notice:slow", "final:00:00:05"}
	got := rec.got()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	drops := 0
	d := NewDispatcher(rec, 1, func() { drops++ })

	// First event occupies the goroutine, second fills the buffer.
	d.OnTranscriptAppended(transcript.Entry{Text: "1"})
	for i := 0; i < 5; i++ {
		d.OnTranscriptAppended(transcript.Entry{Text: "x"})
	}
	if d.Dropped() == 0 {
		t.Error("expected drops with a blocked consumer")
	}
	if int64(drops) != d.Dropped() {
		t.Errorf("onDrop calls = %d, Dropped() = %d", drops, d.Dropped())
	}
	close(rec.block)
	d.Close()
}

func TestDispatcherKeepsLifecycleEventsWhenFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, 1, nil)

	for i := 0; i < 5; i++ {
		d.OnTranscriptAppended(transcript.Entry{Text: "x"})
	}
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		d.OnNotice(slog.LevelError, "device lost")
		d.OnRecordingStateChanged("Idle")
		d.OnFinalStats("00:01:00", 7)
	}()

	close(rec.block)
	<-sent
	d.Close()

	got := rec.got()
	if len(got) < 3 {
		t.Fatalf("events = %v", got)
	}
	tail := got[len(got)-3:]
	want := []string{"notice:device lost", "state:Idle", "final:00:01:00"}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("event %d = %q, want %q (all: %v)", i, tail[i], want[i], got)
		}
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, Nop{}, b}
	m.OnSummaryUpdated(analysis.Value{Text: "S"})
	m.OnFinalStats("00:01:00", 10)

	for _, r := range []*recorder{a, b} {
		if got := r.got(); len(got) != 2 || got[0] != "summary:S" {
			t.Errorf("events = %v", got)
		}
	}
}
