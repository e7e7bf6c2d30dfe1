package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
	"github.com/GriffinCanCode/meetscribe/internal/metrics"
	"github.com/GriffinCanCode/meetscribe/internal/pipeline"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
)

// finalize polishes, persists and reports a stopped session. Every step
// runs even when an earlier one failed.
func (c *Controller) finalize(r *run) {
	defer close(r.done)
	defer r.cancel()

	ctx, span := trace.StartSpan(r.ctx, "finalize_session")
	defer span.End()
	span.SetAttr("session", r.id)
	log := trace.Logger(ctx).With("session", r.id)

	if c.cfg.SettleDelay > 0 {
		time.Sleep(c.cfg.SettleDelay)
	}
	if c.cfg.FinalPolish {
		c.polish(ctx, r)
	}

	rec := meeting.NewRecord(meeting.Info{
		Title:      r.name,
		Start:      r.start,
		End:        r.end,
		TokensUsed: c.tokens.Load(),
	}, c.transcript.Entries(), c.analysis.Get(analysis.Summary).String())

	if err := c.persist(ctx, rec); err != nil {
		span.RecordError(err)
		log.Error("meeting not saved", "error", err)
	}
	c.saveProfiles(log)

	c.deps.Sink.OnFinalStats(rec.Duration, rec.TokensUsed)
	log.Info("session finalized", "duration", rec.Duration, "tokens", rec.TokensUsed)

	c.mu.Lock()
	c.setStateLocked(Idle)
	c.mu.Unlock()
	c.deps.Metrics.Sessions.WithLabelValues(eventFinalized).Inc()
	c.deps.Metrics.ActiveSessions.Dec()
}

// polish runs FinalPolish on every analyzer in parallel against the whole
// transcript. A failed polish keeps the incremental value.
func (c *Controller) polish(ctx context.Context, r *run) {
	full := meeting.FlattenTranscript(c.transcript.Entries())
	if full == "" {
		trace.Logger(ctx).Info("empty transcript, skipping final polish")
		return
	}

	var wg sync.WaitGroup
	for _, a := range r.registry.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.polishOne(ctx, a, full)
		}()
	}
	wg.Wait()
}

func (c *Controller) polishOne(ctx context.Context, a analysis.Analyzer, full string) {
	name := a.Name()
	ctx, span := trace.StartSpan(ctx, "final_polish")
	defer span.End()
	span.SetAttr("analyzer", name)

	start := time.Now()
	next, tokens, err := a.FinalPolish(ctx, full, c.analysis.Get(name))
	c.deps.Metrics.AnalyzerSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if tokens > 0 {
		c.tokens.Add(tokens)
		c.deps.Metrics.AddTokens(tokens)
	}
	if err != nil {
		span.RecordError(err)
		c.deps.Metrics.AnalyzerUpdates.WithLabelValues(name, "final", metrics.StatusError).Inc()
		pipeline.ReportError(c.deps.Sink, c.deps.Journal, name, err)
		trace.Logger(ctx).Error("final polish failed", "analyzer", name, "error", err)
		return
	}

	c.analysis.Set(name, next)
	c.deps.Metrics.AnalyzerUpdates.WithLabelValues(name, "final", metrics.StatusOK).Inc()
	c.deps.Journal.Log(stepFinalPolish, name+" polished")
	pipeline.Publish(c.deps.Sink, name, next)
}

// persist validates and saves rec. Failures are journaled, reported to the
// user and returned; they are never retried.
func (c *Controller) persist(ctx context.Context, rec meeting.Record) error {
	if c.deps.Store == nil {
		return nil
	}
	if err := rec.Validate(); err != nil {
		c.deps.Metrics.Persists.WithLabelValues(metrics.StatusSkipped).Inc()
		c.deps.Journal.Error(stepValidate, err.Error())
		return err
	}
	if err := c.deps.Store.Save(ctx, rec); err != nil {
		c.deps.Metrics.Persists.WithLabelValues(metrics.StatusError).Inc()
		c.deps.Journal.Error(stepSave, err.Error())
		c.deps.Sink.OnNotice(slog.LevelError, "The meeting could not be saved: "+err.Error())
		return err
	}
	c.deps.Metrics.Persists.WithLabelValues(metrics.StatusOK).Inc()
	c.deps.Journal.Log(stepSave, "Saved "+rec.Title+" ("+rec.Date+")")
	return nil
}

func (c *Controller) saveProfiles(log *slog.Logger) {
	if c.deps.Profiles == nil {
		return
	}
	if err := c.deps.Profiles.Save(); err != nil {
		c.deps.Journal.Error(stepProfiles, err.Error())
		log.Warn("voice profiles not saved", "error", err)
	}
}
