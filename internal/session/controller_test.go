package session

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/audio"
	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// chanSource hands out one-byte frames pushed by the test. With the test
// segment config every frame becomes its own segment.
type chanSource struct {
	frames chan []byte
}

func newChanSource() *chanSource { return &chanSource{frames: make(chan []byte, 16)} }

func (s *chanSource) Open() error  { return nil }
func (s *chanSource) Close() error { return nil }

func (s *chanSource) Read() ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-time.After(2 * time.Millisecond):
		return nil, nil
	}
}

func (s *chanSource) say(b byte) { s.frames <- []byte{b} }

// brokenSource fails to open with openErr, or fails every read with readErr.
type brokenSource struct {
	openErr error
	readErr error
}

func (s brokenSource) Open() error           { return s.openErr }
func (s brokenSource) Read() ([]byte, error) { return nil, s.readErr }
func (s brokenSource) Close() error          { return nil }

type scriptTranscriber struct {
	texts map[byte]string
}

func (s scriptTranscriber) Transcribe(_ context.Context, a backend.Audio) (string, error) {
	return s.texts[a.PCM[0]], nil
}

type memStore struct {
	mu    sync.Mutex
	saved []meeting.Record
	err   error
}

func (m *memStore) Save(_ context.Context, rec meeting.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memStore) records() []meeting.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]meeting.Record(nil), m.saved...)
}

type recordingSink struct {
	mu      sync.Mutex
	states  []string
	finals  int
	notices []string
	entries int
}

func (r *recordingSink) OnTranscriptAppended(transcript.Entry) {
	r.mu.Lock()
	r.entries++
	r.mu.Unlock()
}
func (r *recordingSink) OnSummaryUpdated(analysis.Value)          {}
func (r *recordingSink) OnAnalysisUpdated(string, analysis.Value) {}
func (r *recordingSink) OnRecordingStateChanged(s string) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}
func (r *recordingSink) OnFinalStats(string, int64) {
	r.mu.Lock()
	r.finals++
	r.mu.Unlock()
}
func (r *recordingSink) OnNotice(_ slog.Level, m string) {
	r.mu.Lock()
	r.notices = append(r.notices, m)
	r.mu.Unlock()
}

type profiles struct{ saves atomic.Int32 }

func (p *profiles) Save() error {
	p.saves.Add(1)
	return nil
}

type harness struct {
	ctrl  *Controller
	src   *chanSource
	store *memStore
	sink  *recordingSink
	opens atomic.Int32
}

func testConfig(t *testing.T) Config {
	return Config{
		Segment:       audio.SegmentConfig{SampleRate: 10, Channels: 1, FramesPerRead: 10, SegmentSeconds: 1},
		QueueSize:     8,
		Workers:       3,
		TempDir:       t.TempDir(),
		FlushInterval: 100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	}
}

func newHarness(t *testing.T, cfg Config, factory analysis.Factory) *harness {
	t.Helper()
	h := &harness{src: newChanSource(), store: &memStore{}, sink: &recordingSink{}}
	if factory == nil {
		factory = analysis.NewFactory(nil, []string{analysis.Summary, analysis.Themes, analysis.Questions})
	}
	ctrl, err := New(cfg, Deps{
		OpenSource: func() (audio.Source, error) {
			h.opens.Add(1)
			return h.src, nil
		},
		Transcriber: scriptTranscriber{texts: map[byte]string{'A': "A.", 'B': "B.", 'C': "C."}},
		Analyzers:   factory,
		Store:       h.store,
		Sink:        h.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.ctrl = ctrl
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("finalization did not complete")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	open := func() (audio.Source, error) { return newChanSource(), nil }
	factory := analysis.NewFactory(nil, []string{analysis.Summary})
	tr := scriptTranscriber{}

	tests := []struct {
		name string
		deps Deps
	}{
		{"no source", Deps{Transcriber: tr, Analyzers: factory}},
		{"no transcriber", Deps{OpenSource: open, Analyzers: factory}},
		{"no analyzers", Deps{OpenSource: open, Transcriber: tr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{}, tt.deps); !apperrors.IsCode(err, apperrors.CodeConfig) {
				t.Errorf("New() error = %v, want CONFIG", err)
			}
		})
	}
}

func TestStartRequiresNameAndObjective(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	tests := []struct{ name, objective string }{
		{"", "Plan next sprint"},
		{"Sprint Review", "   "},
		{"  ", ""},
	}
	for _, tt := range tests {
		err := h.ctrl.Start(context.Background(), tt.name, tt.objective)
		if !apperrors.IsCode(err, apperrors.CodeValidation) {
			t.Errorf("Start(%q, %q) = %v, want VALIDATION", tt.name, tt.objective, err)
		}
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s, want Idle", h.ctrl.State())
	}
	if h.opens.Load() != 0 {
		t.Error("audio source opened for an invalid start")
	}
}

func TestSprintReview(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, " Sprint Review ", "Plan next sprint"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.ctrl.Start(ctx, "Other", "x"); !apperrors.IsCode(err, apperrors.CodeState) {
		t.Errorf("second Start() = %v, want STATE", err)
	}

	h.src.say('A')
	time.Sleep(20 * time.Millisecond)
	h.src.say('B')

	waitFor(t, "window flush", func() bool {
		s := h.ctrl.Snapshot().Analysis[analysis.Summary].Text
		return strings.Contains(s, "A.") && strings.Contains(s, "B.")
	})

	h.src.say('C')
	waitFor(t, "third entry", func() bool { return len(h.ctrl.Snapshot().Transcript) == 3 })
	h.ctrl.Stop()
	if got := h.ctrl.State(); got != Stopping && got != Idle {
		t.Errorf("state after Stop = %s", got)
	}
	waitDone(t, h.ctrl)

	recs := h.store.records()
	if len(recs) != 1 {
		t.Fatalf("saved %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Title != "Sprint Review" {
		t.Errorf("title = %q", rec.Title)
	}
	for _, want := range []string{"A.", "B.", "C."} {
		if !strings.Contains(rec.FullTranscript, want) {
			t.Errorf("full_transcript %q missing %q", rec.FullTranscript, want)
		}
	}
	if lines := strings.Count(rec.FullTranscript, "\n") + 1; lines != 3 {
		t.Errorf("full_transcript has %d lines, want 3", lines)
	}
	if !strings.Contains(rec.Summary, "C.") {
		t.Errorf("summary %q misses the terminal flush", rec.Summary)
	}
	if rec.TokensUsed < 0 {
		t.Errorf("tokens_used = %d", rec.TokensUsed)
	}

	if h.ctrl.State() != Idle {
		t.Errorf("state = %s, want Idle", h.ctrl.State())
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if h.sink.finals != 1 {
		t.Errorf("final stats reported %d times", h.sink.finals)
	}
	wantStates := []string{"Recording", "Stopping", "Idle"}
	if strings.Join(h.sink.states, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", h.sink.states, wantStates)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	ctrl := h.ctrl

	ctrl.Pause()
	if ctrl.State() != Idle {
		t.Fatal("Pause from Idle changed state")
	}
	if err := ctrl.Start(context.Background(), "Standup", "Unblock the team"); err != nil {
		t.Fatal(err)
	}
	ctrl.Resume()
	if ctrl.State() != Recording {
		t.Errorf("Resume while recording changed state to %s", ctrl.State())
	}

	ctrl.Pause()
	ctrl.Pause()
	if s := ctrl.Snapshot(); s.State != "Paused" || !s.IsPaused || !s.IsRecording {
		t.Errorf("snapshot = %+v", s)
	}
	h.src.say('A')
	time.Sleep(150 * time.Millisecond)
	if n := len(ctrl.Snapshot().Transcript); n != 0 {
		t.Errorf("captured %d entries while paused", n)
	}

	ctrl.Resume()
	waitFor(t, "entry after resume", func() bool { return len(ctrl.Snapshot().Transcript) == 1 })

	ctrl.Stop()
	waitDone(t, ctrl)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	h.ctrl.Stop()
	if h.ctrl.State() != Idle {
		t.Fatal("Stop from Idle changed state")
	}

	if err := h.ctrl.Start(context.Background(), "Retro", "Improve the process"); err != nil {
		t.Fatal(err)
	}
	h.src.say('A')
	waitFor(t, "entry", func() bool { return len(h.ctrl.Snapshot().Transcript) == 1 })

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.Stop()
		}()
	}
	wg.Wait()
	waitDone(t, h.ctrl)
	h.ctrl.Stop()

	if n := len(h.store.records()); n != 1 {
		t.Errorf("saved %d records, want 1", n)
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if h.sink.finals != 1 {
		t.Errorf("final stats reported %d times, want 1", h.sink.finals)
	}
}

func TestEmptySessionStillFinalizes(t *testing.T) {
	cfg := testConfig(t)
	cfg.FinalPolish = true
	h := newHarness(t, cfg, nil)

	if err := h.ctrl.Start(context.Background(), "Quiet", "Nothing said"); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Stop()
	waitDone(t, h.ctrl)

	recs := h.store.records()
	if len(recs) != 1 {
		t.Fatalf("saved %d records, want 1", len(recs))
	}
	if recs[0].FullTranscript != "" || recs[0].Summary != "" {
		t.Errorf("record = %+v, want empty transcript and summary", recs[0])
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	h.store.err = apperrors.New(apperrors.CodePersistence, "db down")
	p := &profiles{}
	h.ctrl.deps.Profiles = p

	if err := h.ctrl.Start(context.Background(), "Planning", "Scope Q3"); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Stop()
	waitDone(t, h.ctrl)

	if h.ctrl.State() != Idle {
		t.Errorf("state = %s, want Idle", h.ctrl.State())
	}
	if p.saves.Load() != 1 {
		t.Error("voice profiles not saved after a failed store write")
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if h.sink.finals != 1 || len(h.sink.notices) != 1 {
		t.Errorf("finals = %d, notices = %v", h.sink.finals, h.sink.notices)
	}
}

func TestStartDeviceFailure(t *testing.T) {
	ctrl, err := New(testConfig(t), Deps{
		OpenSource:  func() (audio.Source, error) { return nil, errors.New("no input device") },
		Transcriber: scriptTranscriber{},
		Analyzers:   analysis.NewFactory(nil, []string{analysis.Summary}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background(), "Sync", "Align"); !apperrors.IsCode(err, apperrors.CodeDevice) {
		t.Errorf("Start() = %v, want DEVICE", err)
	}
	if ctrl.State() != Idle {
		t.Errorf("state = %s, want Idle", ctrl.State())
	}
}

func TestFailedOpenReleasesAnalyzerLanes(t *testing.T) {
	ctrl, err := New(testConfig(t), Deps{
		OpenSource: func() (audio.Source, error) {
			return brokenSource{openErr: errors.New("device busy")}, nil
		},
		Transcriber: scriptTranscriber{},
		Analyzers: analysis.NewFactory(nil, []string{
			analysis.Summary, analysis.Themes, analysis.Insights, analysis.Questions, analysis.ActionItems,
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		if err := ctrl.Start(context.Background(), "Sync", "Align"); !apperrors.IsCode(err, apperrors.CodeDevice) {
			t.Fatalf("Start() = %v, want DEVICE", err)
		}
	}
	waitFor(t, "analyzer lanes to exit", func() bool { return runtime.NumGoroutine() <= before+2 })
	if ctrl.State() != Idle {
		t.Errorf("state = %s, want Idle", ctrl.State())
	}
}

func TestDeviceLossStopsAndSaves(t *testing.T) {
	store := &memStore{}
	sk := &recordingSink{}
	ctrl, err := New(testConfig(t), Deps{
		OpenSource: func() (audio.Source, error) {
			return brokenSource{readErr: errors.New("stream closed")}, nil
		},
		Transcriber: scriptTranscriber{},
		Analyzers:   analysis.NewFactory(nil, []string{analysis.Summary}),
		Store:       store,
		Sink:        sk,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background(), "Sync", "Align"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "session to stop", func() bool { return ctrl.State() != Recording })
	waitDone(t, ctrl)

	if ctrl.State() != Idle {
		t.Errorf("state = %s, want Idle", ctrl.State())
	}
	if n := len(store.records()); n != 1 {
		t.Errorf("saved %d records, want 1", n)
	}
	sk.mu.Lock()
	defer sk.mu.Unlock()
	if len(sk.notices) != 1 || !strings.Contains(sk.notices[0], "device lost") {
		t.Errorf("notices = %v", sk.notices)
	}
}

// polishingSummary folds chunks like the offline summary, charges tokens
// and rewrites the result in FinalPolish.
type polishingSummary struct{ polished atomic.Int32 }

func (p *polishingSummary) Name() string { return analysis.Summary }

func (p *polishingSummary) IncrementalUpdate(_ context.Context, chunk string, prev analysis.Value) (analysis.Value, int64, error) {
	return analysis.Value{Text: strings.TrimSpace(prev.Text + " " + chunk)}, 10, nil
}

func (p *polishingSummary) FinalPolish(_ context.Context, full string, partial analysis.Value) (analysis.Value, int64, error) {
	p.polished.Add(1)
	return analysis.Value{Text: "Final: " + partial.Text}, 5, nil
}

func TestFinalPolishAndTokens(t *testing.T) {
	cfg := testConfig(t)
	cfg.FinalPolish = true
	cfg.SettleDelay = 10 * time.Millisecond
	summary := &polishingSummary{}
	h := newHarness(t, cfg, func(string) (*analysis.Registry, error) {
		return analysis.NewRegistry(summary)
	})

	if err := h.ctrl.Start(context.Background(), "Design review", "Pick a storage engine"); err != nil {
		t.Fatal(err)
	}
	h.src.say('A')
	waitFor(t, "entry", func() bool { return len(h.ctrl.Snapshot().Transcript) == 1 })
	h.ctrl.Stop()
	waitDone(t, h.ctrl)

	rec := h.store.records()[0]
	if rec.Summary != "Final: A." {
		t.Errorf("summary = %q, want polished", rec.Summary)
	}
	if rec.TokensUsed != 15 {
		t.Errorf("tokens_used = %d, want 15", rec.TokensUsed)
	}
	if summary.polished.Load() != 1 {
		t.Errorf("FinalPolish ran %d times", summary.polished.Load())
	}
}

func TestStartResetsPreviousSession(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, "First", "One"); err != nil {
		t.Fatal(err)
	}
	h.src.say('A')
	waitFor(t, "entry", func() bool { return len(h.ctrl.Snapshot().Transcript) == 1 })
	h.ctrl.Stop()
	waitDone(t, h.ctrl)

	if err := h.ctrl.Start(ctx, "Second", "Two"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s := h.ctrl.Snapshot()
	if len(s.Transcript) != 0 || len(s.Analysis) != 0 || s.TokensUsed != 0 {
		t.Errorf("state carried over: %+v", s)
	}
	if s.MeetingName != "Second" {
		t.Errorf("meeting = %q", s.MeetingName)
	}
	h.ctrl.Stop()
	waitDone(t, h.ctrl)
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "Idle", Recording: "Recording", Paused: "Paused", Stopping: "Stopping", State(9): "Unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
