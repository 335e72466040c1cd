package audit

import (
	"sync"

	"github.com/byteness/moduledelivery/logging"
)

// bufferSize bounds how many events may be queued before Emit blocks. Spec
// §4.9 requires emits to be non-blocking and lossless under backpressure; a
// generous buffer makes blocking the exceptional case rather than the norm,
// and the worker drains strictly in arrival order so ordering per attempt is
// preserved (spec §5, "audit events from one attempt are delivered in the
// order emitted").
const bufferSize = 4096

// Sink is a non-blocking, ordered event emitter backed by a dedicated
// worker goroutine, modeled on the teacher's background-cleanup-goroutine
// pattern in ratelimit.MemoryRateLimiter.
type Sink struct {
	logger logging.Logger
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSink starts a Sink that writes every received Event to logger.Log,
// draining events on its own goroutine.
func NewSink(logger logging.Logger) *Sink {
	s := &Sink{
		logger: logger,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Emit queues an event for the worker goroutine. It never blocks the caller
// for longer than it takes to enqueue, unless the buffer itself is full, in
// which case the caller stalls rather than silently dropping the event —
// losslessness takes priority over a guaranteed-non-blocking call in the
// (expected to be rare) overflow case.
func (s *Sink) Emit(kind Kind, module string, fields map[string]string) {
	select {
	case s.events <- New(kind, module, fields):
	case <-s.done:
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.events:
			s.logger.Log(ev)
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain flushes any events still queued at shutdown time so a Close doesn't
// lose events that were already accepted by Emit.
func (s *Sink) drain() {
	for {
		select {
		case ev := <-s.events:
			s.logger.Log(ev)
		default:
			return
		}
	}
}

// Close stops the worker goroutine after flushing pending events. Safe to
// call multiple times.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}
