package thread

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const loopLogPrefix = "thread:loop"

// Loop is a single-goroutine execution context standing in for the UI thread.
// Tasks run one at a time in post order.
type Loop struct {
	maxQueue int

	mu       sync.Mutex
	queue    []func()
	running  bool
	stopping bool
	wake     chan struct{}
	done     chan struct{}

	executed atomic.Uint64
	panicked atomic.Uint64
	rejected atomic.Uint64
}

// NewLoop creates a loop. maxQueue <= 0 means the queue is unbounded.
func NewLoop(maxQueue int) *Loop {
	return &Loop{maxQueue: maxQueue}
}

// Start launches the loop goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}
	l.running = true
	l.stopping = false
	l.wake = make(chan struct{}, 1)
	l.done = make(chan struct{})
	go l.run(l.wake, l.done)
	return nil
}

// Post queues fn for execution on the loop and returns immediately.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		l.rejected.Add(1)
		return ErrNotRunning
	}
	if l.maxQueue > 0 && len(l.queue) >= l.maxQueue {
		l.mu.Unlock()
		l.rejected.Add(1)
		return ErrQueueFull
	}
	l.queue = append(l.queue, fn)
	wake := l.wake
	l.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop refuses new work, drains what is already queued, then waits for the
// loop goroutine to exit or ctx to end.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.stopping = true
	wake, done := l.wake, l.done
	l.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}

	select {
	case <-done:
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop accepts work.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running && !l.stopping
}

// QueueDepth returns the number of tasks waiting.
func (l *Loop) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stats returns loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Executed:   l.executed.Load(),
		Panicked:   l.panicked.Load(),
		Rejected:   l.rejected.Load(),
		QueueDepth: l.QueueDepth(),
	}
}

func (l *Loop) run(wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			stopping := l.stopping
			l.mu.Unlock()
			if stopping {
				return
			}
			<-wake
			continue
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.execute(task)
	}
}

func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			slog.Error(fmt.Sprintf("%s - task panicked: %v\n%s", loopLogPrefix, r, debug.Stack()))
		}
	}()
	task()
	l.executed.Add(1)
}

// Stats holds counters for an execution context.
type Stats struct {
	Executed   uint64 `json:"executed"`
	Panicked   uint64 `json:"panicked"`
	Rejected   uint64 `json:"rejected"`
	QueueDepth int    `json:"queueDepth"`
}
