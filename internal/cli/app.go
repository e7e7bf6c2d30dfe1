package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/audio"
	"github.com/GriffinCanCode/meetscribe/internal/backend"
	"github.com/GriffinCanCode/meetscribe/internal/config"
	"github.com/GriffinCanCode/meetscribe/internal/credentials"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/journal"
	"github.com/GriffinCanCode/meetscribe/internal/metrics"
	"github.com/GriffinCanCode/meetscribe/internal/session"
	"github.com/GriffinCanCode/meetscribe/internal/sink"
	"github.com/GriffinCanCode/meetscribe/internal/speaker"
	"github.com/GriffinCanCode/meetscribe/internal/store"
)

// app owns everything a recording command needs for its lifetime.
type app struct {
	ctrl     *session.Controller
	registry *prometheus.Registry
	metrics  *metrics.Pipeline
	out      *sink.Dispatcher
	closers  []func() error
}

type backends struct {
	transcriber backend.Transcriber
	// llm is nil for the offline provider.
	llm     backend.Summarizer
	sidecar *backend.Sidecar
}

func (b backends) Close() error {
	if b.sidecar == nil {
		return nil
	}
	return b.sidecar.Close()
}

func newBackends(cfg *config.Config, m *metrics.Pipeline) (backends, error) {
	var b backends
	if cfg.Backend.Provider != "openai" || cfg.Speaker.Mode == "sidecar" {
		sc, err := backend.NewSidecar(cfg.Backend.SidecarAddr)
		if err != nil {
			return b, err
		}
		b.sidecar = sc
	}

	switch cfg.Backend.Provider {
	case "openai":
		key, source, err := credentials.Resolve(cfg.Backend.APIKey)
		if err != nil {
			_ = b.Close()
			if errors.Is(err, credentials.ErrNotFound) {
				return backends{}, apperrors.New(apperrors.CodeConfig,
					"no OpenAI API key: set OPENAI_API_KEY or run `meetscribe auth set-key`")
			}
			return backends{}, err
		}
		slog.Debug("openai api key resolved", "source", source, "key", credentials.Mask(key))
		client, err := backend.NewOpenAI(backend.OpenAIConfig{
			BaseURL:         cfg.Backend.BaseURL,
			APIKey:          key,
			ChatModel:       cfg.Backend.ChatModel,
			TranscribeModel: cfg.Backend.TranscribeModel,
			Temperature:     cfg.Backend.Temperature,
			HTTPClient:      &http.Client{Timeout: cfg.Backend.Timeout},
		})
		if err != nil {
			_ = b.Close()
			return backends{}, err
		}
		b.transcriber, b.llm = client, client
	case "sidecar":
		b.transcriber, b.llm = b.sidecar, b.sidecar
	case "offline":
		b.transcriber = b.sidecar
	}

	if b.llm != nil {
		b.llm = backend.WithRateLimitRetry(b.llm, cfg.Pipeline.RateLimitRetries, cfg.Pipeline.RateLimitBackoff,
			func(int, error) { m.RateLimitRetries.Inc() })
	}
	return b, nil
}

// newApp builds the controller and its collaborators from cfg. Events are
// delivered to out through a Dispatcher.
func newApp(ctx context.Context, cfg *config.Config, out sink.Sink) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewPipeline(a.registry)

	b, err := newBackends(cfg, a.metrics)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, b.Close)

	deps := session.Deps{
		OpenSource: func() (audio.Source, error) {
			return audio.NewDevice(audio.DeviceConfig{
				Name:          cfg.Audio.Device,
				SampleRate:    cfg.Audio.SampleRate,
				Channels:      cfg.Audio.Channels,
				FramesPerRead: cfg.Audio.FramesPerRead,
			}), nil
		},
		Transcriber: b.transcriber,
		Analyzers:   analysis.NewFactory(b.llm, cfg.Pipeline.Analyzers),
		Metrics:     a.metrics,
	}

	switch cfg.Speaker.Mode {
	case "local":
		reg := speaker.NewRegistry(cfg.Speaker.ProfilesPath, cfg.Speaker.Tolerance)
		if err := reg.Load(); err != nil {
			slog.Warn("voice profiles not loaded", "path", cfg.Speaker.ProfilesPath, "error", err)
		}
		deps.Speakers, deps.Profiles = reg, reg
	case "sidecar":
		deps.Speakers = b.sidecar
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	deps.Store = st
	a.closers = append(a.closers, st.Close)

	if j, err := journal.Open(cfg.Journal.Path); err != nil {
		slog.Warn("journal disabled", "path", cfg.Journal.Path, "error", err)
	} else {
		deps.Journal = j
		a.closers = append(a.closers, j.Close)
	}

	a.out = sink.NewDispatcher(out, sink.DefaultBuffer, a.metrics.SinkDropped.Inc)
	deps.Sink = a.out

	a.ctrl, err = session.New(session.Config{
		Segment: audio.SegmentConfig{
			SampleRate:     cfg.Audio.SampleRate,
			Channels:       cfg.Audio.Channels,
			FramesPerRead:  cfg.Audio.FramesPerRead,
			SegmentSeconds: cfg.Audio.SegmentSeconds,
			OverlapSeconds: cfg.Audio.OverlapSeconds,
		},
		QueueSize:     cfg.Audio.QueueSize,
		Workers:       cfg.Pipeline.Workers,
		TempDir:       cfg.Audio.TempDir,
		FlushInterval: cfg.Pipeline.FlushInterval,
		TextQueueSize: cfg.Pipeline.TextQueueSize,
		SettleDelay:   cfg.Pipeline.SettleDelay,
		FinalPolish:   cfg.Pipeline.FinalPolish,
	}, deps)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close flushes pending events and releases backends, store and journal.
func (a *app) Close() error {
	if a.out != nil {
		a.out.Flush()
		a.out.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
