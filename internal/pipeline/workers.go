package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/audio"
	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/journal"
	"github.com/GriffinCanCode/meetscribe/internal/metrics"
	"github.com/GriffinCanCode/meetscribe/internal/resilience"
	"github.com/GriffinCanCode/meetscribe/internal/sink"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// PoolConfig sizes the transcription pool.
type PoolConfig struct {
	Workers    int
	TempDir    string
	SampleRate int
	Channels   int
}

// PoolDeps are the pool's collaborators. Speakers may be nil.
type PoolDeps struct {
	Transcriber backend.Transcriber
	Speakers    backend.SpeakerIdentifier
	Breaker     *resilience.Breaker
	Transcript  *transcript.Store
	Sink        sink.Sink
	Metrics     *metrics.Pipeline
	Journal     journal.Logger
}

// Pool transcribes segments on a fixed number of workers. Entries are
// appended in completion order.
type Pool struct {
	cfg  PoolConfig
	deps PoolDeps
	text chan<- string
	wg   sync.WaitGroup
}

// NewPool creates a pool that publishes transcribed text on text.
func NewPool(cfg PoolConfig, deps PoolDeps, text chan<- string) (*Pool, error) {
	if deps.Transcriber == nil {
		return nil, apperrors.New(apperrors.CodeConfig, "transcriber is required")
	}
	if deps.Transcript == nil {
		return nil, apperrors.New(apperrors.CodeConfig, "transcript store is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = audio.DefaultChannels
	}
	if deps.Breaker == nil {
		deps.Breaker = resilience.NewBreaker("transcribe", resilience.TranscriptionConfig())
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
	return &Pool{cfg: cfg, deps: deps, text: text}, nil
}

// Start launches the workers. They exit once segments is closed and drained.
func (p *Pool) Start(ctx context.Context, segments <-chan audio.Segment) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.Drain(ctx, segments)
		}()
	}
}

// Drain processes segments until the channel is closed. Session shutdown
// calls it on its own goroutine alongside the workers.
func (p *Pool) Drain(ctx context.Context, segments <-chan audio.Segment) {
	for seg := range segments {
		p.deps.Metrics.AudioQueueDepth.Set(float64(len(segments)))
		p.Process(ctx, seg)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() { p.wg.Wait() }

// Process transcribes one segment. Failures are logged and the segment
// is dropped; nothing is returned because the session must keep going.
func (p *Pool) Process(ctx context.Context, seg audio.Segment) {
	ctx, span := trace.StartSpan(ctx, "transcribe_segment")
	defer span.End()
	span.SetAttr("sequence", seg.Sequence)
	log := trace.Logger(ctx).With("sequence", seg.Sequence)

	a := backend.Audio{PCM: seg.Samples, SampleRate: p.cfg.SampleRate, Channels: p.cfg.Channels}
	path, err := audio.WriteTempWAV(p.cfg.TempDir, seg, p.cfg.SampleRate, p.cfg.Channels)
	if err != nil {
		log.Warn("temp wav not written, sending raw pcm", "error", err)
	} else {
		a.WAVPath = path
		defer p.remove(path)
	}

	speaker := p.identify(ctx, a)

	start := time.Now()
	text, err := resilience.Call(p.deps.Breaker, func() (string, error) {
		return p.deps.Transcriber.Transcribe(ctx, a)
	})
	p.deps.Metrics.TranscriptionSeconds.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, resilience.ErrOpen):
		p.deps.Metrics.SegmentsProcessed.WithLabelValues(metrics.StatusSkipped).Inc()
		log.Warn("transcription breaker open, segment skipped")
		return
	case err != nil:
		span.RecordError(err)
		p.deps.Metrics.SegmentsProcessed.WithLabelValues(metrics.StatusError).Inc()
		p.deps.Journal.Error(stepTranscription, err.Error())
		log.Error("transcription failed", "error", err)
		return
	case text == "":
		p.deps.Metrics.SegmentsProcessed.WithLabelValues(metrics.StatusEmpty).Inc()
		return
	}

	entry := p.deps.Transcript.Append(transcript.Entry{Timestamp: time.Now(), SpeakerID: speaker, Text: text})
	p.text <- entry.Text
	p.deps.Sink.OnTranscriptAppended(entry)
	p.deps.Metrics.SegmentsProcessed.WithLabelValues(metrics.StatusOK).Inc()
	log.Debug("segment transcribed", "speaker", speaker, "chars", len(text))
}

func (p *Pool) identify(ctx context.Context, a backend.Audio) string {
	if p.deps.Speakers == nil {
		return transcript.UnknownSpeaker
	}
	id, err := p.deps.Speakers.IdentifySpeaker(ctx, a)
	if err != nil {
		trace.Logger(ctx).Warn("speaker identification failed", "error", err)
		return transcript.UnknownSpeaker
	}
	if id == "" {
		return transcript.UnknownSpeaker
	}
	return id
}

func (p *Pool) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		err = apperrors.Wrapf(err, apperrors.CodeIO, "remove %s", path)
		p.deps.Journal.Error(stepCleanup, err.Error())
		trace.Logger(context.Background()).Warn("temp file not removed", "error", err)
	}
}
