package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/audio"
	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/journal"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
	"github.com/GriffinCanCode/meetscribe/internal/metrics"
	"github.com/GriffinCanCode/meetscribe/internal/pipeline"
	"github.com/GriffinCanCode/meetscribe/internal/resilience"
	"github.com/GriffinCanCode/meetscribe/internal/sink"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// Persister saves finished meetings.
type Persister interface {
	Save(ctx context.Context, rec meeting.Record) error
}

// ProfileSaver persists speaker voice profiles after a session.
type ProfileSaver interface {
	Save() error
}

// Config tunes one recording session.
type Config struct {
	Segment       audio.SegmentConfig
	QueueSize     int
	Workers       int
	TempDir       string
	FlushInterval time.Duration
	PollInterval  time.Duration
	TextQueueSize int
	// SettleDelay is waited before the final polish. Zero skips it.
	SettleDelay time.Duration
	FinalPolish bool
}

// Deps are the controller's collaborators. OpenSource, Transcriber and
// Analyzers are required; the rest fall back to no-ops.
type Deps struct {
	OpenSource  func() (audio.Source, error)
	Transcriber backend.Transcriber
	Speakers    backend.SpeakerIdentifier
	Profiles    ProfileSaver
	Analyzers   analysis.Factory
	Store       Persister
	Sink        sink.Sink
	Metrics     *metrics.Pipeline
	Journal     journal.Logger
	Now         func() time.Time
}

// run is the per-session pipeline, replaced on every Start.
type run struct {
	id        string
	name      string
	objective string
	start     time.Time
	end       time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	registry  *analysis.Registry
	recorder  *audio.Recorder
	pool      *pipeline.Pool
	scheduler *pipeline.Scheduler
	text      chan string
	done      chan struct{}
}

// Controller drives one meeting at a time through
// Idle, Recording, Paused and Stopping.
type Controller struct {
	cfg  Config
	deps Deps

	transcript *transcript.Store
	analysis   *analysis.State
	tokens     atomic.Int64

	mu    sync.Mutex
	state State
	run   *run
	done  chan struct{}
}

// New creates an idle controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.OpenSource == nil:
		return nil, apperrors.New(apperrors.CodeConfig, "audio source is required")
	case deps.Transcriber == nil:
		return nil, apperrors.New(apperrors.CodeConfig, "transcriber is required")
	case deps.Analyzers == nil:
		return nil, apperrors.New(apperrors.CodeConfig, "analyzer factory is required")
	}
	if deps.Sink == nil {
		deps.Sink = sink.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.TextQueueSize <= 0 {
		cfg.TextQueueSize = pipeline.DefaultTextQueueSize
	}

	done := make(chan struct{})
	close(done)
	return &Controller{
		cfg:        cfg,
		deps:       deps,
		transcript: transcript.NewStore(),
		analysis:   analysis.NewState(),
		done:       done,
	}, nil
}

// Start begins recording a meeting. Name and objective are trimmed and
// both required. Only an idle controller can start.
func (c *Controller) Start(ctx context.Context, name, objective string) error {
	name, objective = strings.TrimSpace(name), strings.TrimSpace(objective)
	if name == "" || objective == "" {
		c.deps.Metrics.Sessions.WithLabelValues(eventRejected).Inc()
		return apperrors.New(apperrors.CodeValidation, "meeting name and objective are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		c.deps.Metrics.Sessions.WithLabelValues(eventRejected).Inc()
		return apperrors.Newf(apperrors.CodeState, "cannot start a session while %s", c.state)
	}

	registry, err := c.deps.Analyzers(objective)
	if err != nil {
		return err
	}
	src, err := c.deps.OpenSource()
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeDevice {
			err = apperrors.Wrap(err, apperrors.CodeDevice, "open audio source")
		}
		return err
	}

	c.transcript.Reset()
	c.analysis.Reset()
	c.tokens.Store(0)

	// Backend calls outlive the request that started the session.
	ctx, _ = trace.EnsureContext(context.WithoutCancel(ctx))
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:        uuid.NewString(),
		name:      name,
		objective: objective,
		start:     c.deps.Now(),
		ctx:       runCtx,
		cancel:    cancel,
		registry:  registry,
		text:      make(chan string, c.cfg.TextQueueSize),
		done:      make(chan struct{}),
	}

	if err := c.wire(r, src); err != nil {
		cancel()
		return err
	}
	if err := r.recorder.Start(runCtx); err != nil {
		r.scheduler.Close()
		cancel()
		c.deps.Journal.Error(stepDevice, err.Error())
		return err
	}
	r.pool.Start(runCtx, r.recorder.Segments())
	go r.scheduler.Run(runCtx, r.text)
	go c.watchCapture(r)

	c.run = r
	c.done = r.done
	c.setStateLocked(Recording)
	c.deps.Metrics.Sessions.WithLabelValues(eventStarted).Inc()
	c.deps.Metrics.ActiveSessions.Inc()
	c.deps.Journal.Log(stepStart, "Started "+name+": "+objective)
	trace.Logger(runCtx).Info("session started", "session", r.id, "meeting", name)
	return nil
}

func (c *Controller) wire(r *run, src audio.Source) error {
	r.recorder = audio.NewRecorder(src, c.cfg.Segment, c.cfg.QueueSize)
	r.recorder.OnSegment = func(audio.Segment) { c.deps.Metrics.SegmentsCaptured.Inc() }
	r.recorder.OnDeviceLost = c.deviceLost

	breaker := resilience.NewBreaker("transcribe", resilience.TranscriptionConfig()).
		WithHook(func(name string, _, to resilience.State) {
			c.deps.Metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		})

	seg := c.cfg.Segment
	pool, err := pipeline.NewPool(pipeline.PoolConfig{
		Workers:    c.cfg.Workers,
		TempDir:    c.cfg.TempDir,
		SampleRate: seg.SampleRate,
		Channels:   seg.Channels,
	}, pipeline.PoolDeps{
		Transcriber: c.deps.Transcriber,
		Speakers:    c.deps.Speakers,
		Breaker:     breaker,
		Transcript:  c.transcript,
		Sink:        c.deps.Sink,
		Metrics:     c.deps.Metrics,
		Journal:     c.deps.Journal,
	}, r.text)
	if err != nil {
		return err
	}

	scheduler, err := pipeline.NewScheduler(pipeline.SchedulerConfig{
		FlushInterval: c.cfg.FlushInterval,
		PollInterval:  c.cfg.PollInterval,
	}, pipeline.SchedulerDeps{
		Registry: r.registry,
		State:    c.analysis,
		Tokens:   &c.tokens,
		Sink:     c.deps.Sink,
		Metrics:  c.deps.Metrics,
		Journal:  c.deps.Journal,
	})
	if err != nil {
		return err
	}

	r.pool = pool
	r.scheduler = scheduler
	return nil
}

// Pause suspends capture. Workers and analyzers keep draining. No-op
// unless recording.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return
	}
	c.run.recorder.Pause()
	c.setStateLocked(Paused)
}

// Resume restarts capture. No-op unless paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return
	}
	c.run.recorder.Resume()
	c.setStateLocked(Recording)
}

// Stop ends recording. Queued audio is transcribed on the calling
// goroutine and the terminal flush is applied before Stop returns;
// finalization then continues in the background until Done is closed.
// Calling Stop in any other state than Recording or Paused does nothing.
func (c *Controller) Stop() { c.stop(nil) }

// stop ends the current run, or only the given run when want is set.
func (c *Controller) stop(want *run) {
	c.mu.Lock()
	if (c.state != Recording && c.state != Paused) || (want != nil && c.run != want) {
		c.mu.Unlock()
		return
	}
	r := c.run
	r.end = c.deps.Now()
	c.setStateLocked(Stopping)
	c.mu.Unlock()

	r.recorder.Stop()
	r.pool.Drain(r.ctx, r.recorder.Segments())
	r.pool.Wait()
	close(r.text)
	<-r.scheduler.Done()

	c.deps.Metrics.Sessions.WithLabelValues(eventStopped).Inc()
	c.deps.Journal.Log(stepStop, "Stopped "+r.name+" after "+meeting.FormatDuration(r.start, r.end))
	trace.Logger(r.ctx).Info("session stopped", "session", r.id, "entries", c.transcript.Len())

	go c.finalize(r)
}

// Done is closed once the latest session has been finalized. It is
// already closed when no session has run.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot copies the session and analysis state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:       c.state.String(),
		IsRecording: c.state == Recording || c.state == Paused,
		IsPaused:    c.state == Paused,
	}
	if r := c.run; r != nil {
		s.ID = r.id
		s.MeetingName = r.name
		s.Objective = r.objective
		s.StartTime = r.start
		s.EndTime = r.end
	}
	c.mu.Unlock()

	s.TokensUsed = c.tokens.Load()
	s.Transcript = c.transcript.Entries()
	s.Analysis = c.analysis.Snapshot()
	return s
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	c.deps.Sink.OnRecordingStateChanged(s.String())
}

// deviceLost runs on the capture goroutine just before it exits.
func (c *Controller) deviceLost(err error) {
	c.deps.Journal.Error(stepDevice, err.Error())
	c.deps.Sink.OnNotice(slog.LevelError, "Audio device lost, stopping the recording.")
}

// watchCapture stops r when capture ends without a Stop, after device loss.
func (c *Controller) watchCapture(r *run) {
	<-r.recorder.Done()
	c.stop(r)
}
