package thread

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const poolLogPrefix = "thread:pool"

// Pool executes tasks on a fixed set of worker goroutines fed by a bounded queue.
type Pool struct {
	queueSize   int
	workerCount int

	// mu guards queue against a send racing with close in Stop.
	mu      sync.RWMutex
	queue   chan func()
	running atomic.Bool
	wg      sync.WaitGroup

	executed atomic.Uint64
	panicked atomic.Uint64
	rejected atomic.Uint64
}

// NewPool creates a pool with workerCount workers and a queue of queueSize.
func NewPool(workerCount, queueSize int) *Pool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Pool{queueSize: queueSize, workerCount: workerCount}
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}
	p.queue = make(chan func(), p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.queue)
	}
	return nil
}

// Submit queues fn without blocking. It returns ErrQueueFull when the queue is at capacity.
func (p *Pool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		p.rejected.Add(1)
		return ErrNotRunning
	}
	select {
	case p.queue <- fn:
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued tasks to finish or ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the pool accepts work.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats returns pool counters.
func (p *Pool) Stats() Stats {
	depth := 0
	p.mu.RLock()
	if p.running.Load() {
		depth = len(p.queue)
	}
	p.mu.RUnlock()
	return Stats{
		Executed:   p.executed.Load(),
		Panicked:   p.panicked.Load(),
		Rejected:   p.rejected.Load(),
		QueueDepth: depth,
	}
}

func (p *Pool) worker(queue <-chan func()) {
	defer p.wg.Done()
	for task := range queue {
		p.execute(task)
	}
}

func (p *Pool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			slog.Error(fmt.Sprintf("%s - task panicked: %v\n%s", poolLogPrefix, r, debug.Stack()))
		}
	}()
	task()
	p.executed.Add(1)
}
