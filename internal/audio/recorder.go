package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// Source is a blocking frame reader, normally a *Device.
type Source interface {
	Open() error
	Read() ([]byte, error)
	Close() error
}

// Suspender is implemented by sources that can halt input while capture is
// paused, so audio from the pause is not buffered and read after Resume.
type Suspender interface {
	Suspend() error
	Resume() error
}

// Recorder runs the capture loop: it reads from a Source, cuts segments and
// publishes them on a bounded channel. The channel is closed exactly once,
// whether capture stops normally or the device fails.
type Recorder struct {
	src  Source
	cfg  SegmentConfig
	out  chan Segment
	seg  *Segmenter
	done chan struct{}
	stop chan struct{}

	paused  atomic.Bool
	started atomic.Bool

	stopOnce  sync.Once
	closeOnce sync.Once

	// OnDeviceLost is called from the capture goroutine when reads keep failing.
	OnDeviceLost func(err error)
	// OnSegment is called after a segment has been queued.
	OnSegment func(seg Segment)
}

// NewRecorder creates a recorder publishing into a queue of queueSize segments.
func NewRecorder(src Source, cfg SegmentConfig, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	cfg = cfg.withDefaults()
	return &Recorder{
		src:  src,
		cfg:  cfg,
		out:  make(chan Segment, queueSize),
		seg:  NewSegmenter(cfg),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
}

// Segments returns the channel segments are published on.
func (r *Recorder) Segments() <-chan Segment { return r.out }

// Done is closed when the capture loop has exited and the channel is closed.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Start opens the source and launches the capture loop. An open failure is
// returned as a DEVICE error and the segment channel is closed.
func (r *Recorder) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.CodeState, "recorder already started")
	}
	if err := r.src.Open(); err != nil {
		r.closeOutput()
		close(r.done)
		if apperrors.CodeOf(err) != apperrors.CodeDevice {
			err = apperrors.Wrap(err, apperrors.CodeDevice, "open audio source")
		}
		return err
	}
	go r.loop(ctx)
	return nil
}

// Pause suspends segment production; reads are skipped until Resume and a
// Suspender source is halted.
func (r *Recorder) Pause() { r.paused.Store(true) }

// Resume restarts segment production.
func (r *Recorder) Resume() { r.paused.Store(false) }

// Stop ends capture, flushes the final partial segment and waits for the
// loop to exit. Safe to call more than once.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.started.Load() {
		<-r.done
	}
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)
	defer r.closeOutput()
	defer func() {
		if err := r.src.Close(); err != nil {
			slog.Warn("close audio source", "error", err)
		}
	}()

	var consecutive int
	suspended := false
	for {
		select {
		case <-r.stop:
			r.flush(ctx)
			return
		case <-ctx.Done():
			r.flush(ctx)
			return
		default:
		}

		if r.paused.Load() {
			if !suspended {
				r.suspend(true)
				suspended = true
			}
			time.Sleep(PausePollInterval)
			continue
		}
		if suspended {
			r.suspend(false)
			suspended = false
		}

		frames, err := r.src.Read()
		if err != nil {
			consecutive++
			slog.Warn("audio read failed", "error", err, "consecutive", consecutive)
			if consecutive >= MaxConsecutiveReadErrors {
				lost := apperrors.Wrap(err, apperrors.CodeDevice, "audio device lost")
				slog.Error("stopping capture", "error", lost)
				if r.OnDeviceLost != nil {
					r.OnDeviceLost(lost)
				}
				r.flush(ctx)
				return
			}
			time.Sleep(readErrorBackoff)
			continue
		}
		consecutive = 0
		if len(frames) == 0 {
			continue
		}

		if seg, ok := r.seg.Push(frames); ok {
			r.publish(ctx, seg)
		}
	}
}

func (r *Recorder) suspend(on bool) {
	s, ok := r.src.(Suspender)
	if !ok {
		return
	}
	var err error
	if on {
		err = s.Suspend()
	} else {
		err = s.Resume()
	}
	if err != nil {
		slog.Warn("audio source suspend", "suspend", on, "error", err)
	}
}

func (r *Recorder) flush(ctx context.Context) {
	if seg, ok := r.seg.Flush(); ok {
		r.publish(ctx, seg)
	}
}

// publish blocks while the queue is full so capture backs off instead of dropping.
func (r *Recorder) publish(ctx context.Context, seg Segment) {
	select {
	case r.out <- seg:
		if r.OnSegment != nil {
			r.OnSegment(seg)
		}
	case <-ctx.Done():
		slog.Debug("dropping segment on cancel", "sequence", seg.Sequence)
	}
}

func (r *Recorder) closeOutput() {
	r.closeOnce.Do(func() { close(r.out) })
}
