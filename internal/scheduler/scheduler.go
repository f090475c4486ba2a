// Package scheduler coalesces bursts of document change notifications into
// deferred index updates.
package scheduler

import (
	"slices"
	"sync/atomic"
	"time"
)

// Op is the pending action for a document.
type Op int

const (
	// OpUpdate re-reads and re-indexes the document.
	OpUpdate Op = iota
	// OpRemove drops the document from the index.
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "update"
}

// Task is a unit of index work handed to the handler.
type Task struct {
	Op   Op
	Path string
}

// Handler applies a task. It runs on the scheduler goroutine, so tasks are
// never handled concurrently.
type Handler func(Task)

// Scheduler batches tasks per path with a trailing debounce window. While
// the user is typing (see Typed) pending work waits until the idle period
// has elapsed.
//
// A single goroutine owns the pending set and both timers. Public methods
// talk to it over channels.
type Scheduler struct {
	debounce time.Duration
	idle     time.Duration
	handle   Handler

	scheduleCh chan Task
	typedCh    chan struct{}
	flushCh    chan chan struct{}

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New starts a scheduler. Non-positive durations disable the respective
// delay.
func New(debounce, idle time.Duration, handle Handler) *Scheduler {
	s := &Scheduler{
		debounce:   max(debounce, 0),
		idle:       max(idle, 0),
		handle:     handle,
		scheduleCh: make(chan Task, 256),
		typedCh:    make(chan struct{}, 1),
		flushCh:    make(chan chan struct{}),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer close(s.stopped)

	pending := make(map[string]Op)
	typing := false

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	idle := time.NewTimer(time.Hour)
	idle.Stop()
	var debounceC, idleC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		batch := make([]Task, 0, len(paths))
		for _, p := range paths {
			batch = append(batch, Task{Op: pending[p], Path: p})
		}
		clear(pending)
		for _, t := range batch {
			s.handle(t)
		}
	}

	for {
		select {
		case <-s.stopCh:
			debounce.Stop()
			idle.Stop()
			return

		case t := <-s.scheduleCh:
			pending[t.Path] = t.Op
			debounce.Reset(s.debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if !typing {
				flush()
			}

		case <-s.typedCh:
			if s.idle == 0 {
				continue
			}
			typing = true
			idle.Reset(s.idle)
			idleC = idle.C

		case <-idleC:
			idleC = nil
			typing = false
			if debounceC == nil {
				flush()
			}

		case done := <-s.flushCh:
		drain:
			for {
				select {
				case t := <-s.scheduleCh:
					pending[t.Path] = t.Op
				default:
					break drain
				}
			}
			flush()
			close(done)
		}
	}
}

// Schedule queues op for path. A later call for the same path replaces the
// earlier op and restarts the debounce window.
func (s *Scheduler) Schedule(op Op, path string) {
	if s.closed.Load() {
		return
	}
	select {
	case s.scheduleCh <- Task{Op: op, Path: path}:
	case <-s.stopped:
	}
}

// Typed marks recent user input. Pending work is held until no further
// input has arrived for the idle period.
func (s *Scheduler) Typed() {
	if s.closed.Load() {
		return
	}
	select {
	case s.typedCh <- struct{}{}:
	case <-s.stopped:
	default:
		// A typing signal is already queued.
	}
}

// Flush handles all pending tasks immediately, ignoring the debounce window
// and typing state, and returns once they are done.
func (s *Scheduler) Flush() {
	if s.closed.Load() {
		return
	}
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-s.stopped:
		return
	}
	select {
	case <-done:
	case <-s.stopped:
	}
}

// Close stops the scheduler. Pending tasks are discarded.
func (s *Scheduler) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}
