package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/journal"
	"github.com/GriffinCanCode/meetscribe/internal/metrics"
	"github.com/GriffinCanCode/meetscribe/internal/sink"
	"github.com/GriffinCanCode/meetscribe/internal/syncx"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
)

// SchedulerConfig sets the flush cadence.
type SchedulerConfig struct {
	FlushInterval time.Duration
	// PollInterval bounds how long the loop waits for text before
	// re-checking the window.
	PollInterval time.Duration
	LaneBuffer   int
}

// SchedulerDeps are the scheduler's collaborators.
type SchedulerDeps struct {
	Registry *analysis.Registry
	State    *analysis.State
	Tokens   *atomic.Int64
	Sink     sink.Sink
	Metrics  *metrics.Pipeline
	Journal  journal.Logger
}

// Scheduler batches transcript text into chunks and feeds every analyzer.
// Each analyzer owns a serial lane, so updates to one analyzer never
// overlap while different analyzers run in parallel. A flush is held back
// while the summary lane is busy, so at most one summary call is in flight.
type Scheduler struct {
	cfg    SchedulerConfig
	deps   SchedulerDeps
	window *Window
	lanes  map[string]*syncx.Serial
	now    func() time.Time
	done   chan struct{}

	flushes atomic.Int64
}

// NewScheduler creates a scheduler with one lane per registered analyzer.
func NewScheduler(cfg SchedulerConfig, deps SchedulerDeps) (*Scheduler, error) {
	if deps.Registry == nil || deps.State == nil {
		return nil, apperrors.New(apperrors.CodeConfig, "scheduler needs a registry and state")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = min(DefaultPollInterval, cfg.FlushInterval)
	}
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = DefaultLaneBuffer
	}
	if deps.Tokens == nil {
		deps.Tokens = new(atomic.Int64)
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

	s := &Scheduler{
		cfg:   cfg,
		deps:  deps,
		lanes: make(map[string]*syncx.Serial),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	for _, name := range deps.Registry.Names() {
		s.lanes[name] = syncx.NewSerial("analyzer:"+name, cfg.LaneBuffer)
	}
	return s, nil
}

// Done is closed after the terminal flush has been applied.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Flushes returns the number of chunks dispatched so far.
func (s *Scheduler) Flushes() int64 { return s.flushes.Load() }

// Close shuts the analyzer lanes of a scheduler that will never Run. Run
// closes them itself after the terminal flush. Safe to call twice.
func (s *Scheduler) Close() {
	for _, lane := range s.lanes {
		lane.Close()
	}
}

// Run consumes text until it is closed, then performs the terminal flush
// and waits for every lane to go idle. In-flight analyzer calls are never
// cancelled; ctx is passed through to them.
func (s *Scheduler) Run(ctx context.Context, text <-chan string) {
	defer close(s.done)
	s.window = NewWindow(s.cfg.FlushInterval, s.now())

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-text:
			if !ok {
				s.terminal(ctx)
				return
			}
			s.window.Add(t)
		case <-ticker.C:
		}
		s.maybeFlush(ctx)
	}
}

func (s *Scheduler) maybeFlush(ctx context.Context) {
	now := s.now()
	if !s.window.Ready(now) {
		return
	}
	if lane, ok := s.lanes[analysis.Summary]; ok && lane.Busy() {
		s.deps.Metrics.FlushesDeferred.Inc()
		return
	}
	if chunk := s.window.Take(now); chunk != "" {
		s.dispatch(ctx, chunk)
	}
}

// terminal flushes all remaining text exactly once.
func (s *Scheduler) terminal(ctx context.Context) {
	if lane, ok := s.lanes[analysis.Summary]; ok {
		lane.Wait()
	}
	if chunk := s.window.Drain(); chunk != "" {
		s.dispatch(ctx, chunk)
	}
	s.Close()
	slog.Debug("scheduler finished", "flushes", s.flushes.Load())
}

func (s *Scheduler) dispatch(ctx context.Context, chunk string) {
	s.flushes.Add(1)
	s.deps.Metrics.Flushes.Inc()
	for _, a := range s.deps.Registry.All() {
		lane := s.lanes[a.Name()]
		if !lane.Submit(func() { s.apply(ctx, a, chunk) }) {
			slog.Warn("analyzer lane closed, update dropped", "analyzer", a.Name())
		}
	}
}

// apply runs one update and publishes its result. Failures leave the
// previous value in place.
func (s *Scheduler) apply(ctx context.Context, a analysis.Analyzer, chunk string) {
	name := a.Name()
	ctx, span := trace.StartSpan(ctx, "analyzer_update")
	defer span.End()
	span.SetAttr("analyzer", name)
	log := trace.Logger(ctx).With("analyzer", name)

	start := time.Now()
	next, tokens, err := a.IncrementalUpdate(ctx, chunk, s.deps.State.Get(name))
	s.deps.Metrics.AnalyzerSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	s.addTokens(tokens)

	if err != nil {
		span.RecordError(err)
		s.deps.Metrics.AnalyzerUpdates.WithLabelValues(name, "incremental", metrics.StatusError).Inc()
		ReportError(s.deps.Sink, s.deps.Journal, name, err)
		log.Error("analyzer update failed", "error", err)
		return
	}

	s.deps.State.Set(name, next)
	s.deps.Metrics.AnalyzerUpdates.WithLabelValues(name, "incremental", metrics.StatusOK).Inc()
	Publish(s.deps.Sink, name, next)
}

func (s *Scheduler) addTokens(n int64) {
	if n <= 0 {
		return
	}
	s.deps.Tokens.Add(n)
	s.deps.Metrics.AddTokens(n)
}

// Publish notifies the sink of a new analyzer value.
func Publish(sk sink.Sink, name string, v analysis.Value) {
	if name == analysis.Summary {
		sk.OnSummaryUpdated(v)
		return
	}
	sk.OnAnalysisUpdated(name, v)
}

// ReportError journals an analyzer failure. Exhausted rate-limit retries
// also raise a user-visible notice.
func ReportError(sk sink.Sink, j journal.Logger, analyzer string, err error) {
	if apperrors.IsRateLimit(err) {
		j.Error(stepRateLimit, analyzer+": "+apperrors.RateLimitMessage)
		sk.OnNotice(slog.LevelWarn, apperrors.RateLimitMessage)
		return
	}
	j.Error(stepAnalysis, analyzer+": "+err.Error())
}
