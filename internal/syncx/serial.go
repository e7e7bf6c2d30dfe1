package syncx

import (
	"log/slog"
	"sync"
)

// Serial runs submitted tasks one at a time, in submission order, on a
// single owned goroutine.
type Serial struct {
	name  string
	tasks chan func()
	done  chan struct{}

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	closed   bool
}

// NewSerial starts an executor whose queue holds up to buffer pending tasks.
func NewSerial(name string, buffer int) *Serial {
	if buffer < 0 {
		buffer = 0
	}
	s := &Serial{
		name:  name,
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *Serial) run() {
	defer close(s.done)
	for fn := range s.tasks {
		s.exec(fn)
	}
}

func (s *Serial) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("serial task panicked", "executor", s.name, "panic", r)
		}
		s.mu.Lock()
		s.inflight--
		if s.inflight == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}()
	fn()
}

func (s *Serial) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight++
	return true
}

func (s *Serial) release() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// Submit queues fn, blocking while the queue is full. Returns false once closed.
func (s *Serial) Submit(fn func()) bool {
	if !s.reserve() {
		return false
	}
	s.tasks <- fn
	return true
}

// TrySubmit queues fn without blocking. Returns false when full or closed.
func (s *Serial) TrySubmit(fn func()) bool {
	if !s.reserve() {
		return false
	}
	select {
	case s.tasks <- fn:
		return true
	default:
		s.release()
		return false
	}
}

// Busy reports whether a task is queued or running.
func (s *Serial) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Wait blocks until every submitted task has finished.
func (s *Serial) Wait() {
	s.mu.Lock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close stops accepting tasks, runs what is queued and waits for it.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Reservations taken before closed was set may still be sending.
	s.Wait()
	close(s.tasks)
	<-s.done
}
