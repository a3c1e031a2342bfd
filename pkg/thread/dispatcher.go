// Package thread decides which execution context a call's handler runs on and performs the hop.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const logPrefix = "thread:dispatcher"

// Work is the handler invocation. onOriginalThread is true when no hop occurred.
type Work func(ctx context.Context, onOriginalThread bool)

type contextKey struct{}

type marker struct {
	owner *Dispatcher
	kind  bridge.ThreadType
}

// Current returns the execution context ctx was marked with, or ThreadUnspecified
// for contexts that did not originate from a Dispatcher.
func Current(ctx context.Context) bridge.ThreadType {
	if m, ok := ctx.Value(contextKey{}).(marker); ok {
		return m.kind
	}
	return bridge.ThreadUnspecified
}

// Options configures a Dispatcher.
type Options struct {
	UIQueueSize     int
	WorkerCount     int
	WorkerQueueSize int
	// DefaultThread is used when neither the call nor the policy names a context. Defaults to UI.
	DefaultThread bridge.ThreadType
}

// Dispatcher owns the UI loop and the worker pool.
type Dispatcher struct {
	loop          *Loop
	pool          *Pool
	defaultThread bridge.ThreadType
}

// NewDispatcher creates a Dispatcher. Call Start before dispatching.
func NewDispatcher(opts Options) *Dispatcher {
	def := opts.DefaultThread
	if def != bridge.ThreadWorker {
		def = bridge.ThreadUI
	}
	return &Dispatcher{
		loop:          NewLoop(opts.UIQueueSize),
		pool:          NewPool(opts.WorkerCount, opts.WorkerQueueSize),
		defaultThread: def,
	}
}

// Start starts the UI loop and the worker pool.
func (d *Dispatcher) Start() error {
	if err := d.loop.Start(); err != nil {
		return fmt.Errorf("%s - failed to start ui loop: %w", logPrefix, err)
	}
	if err := d.pool.Start(); err != nil {
		d.loop.Stop(context.Background())
		return fmt.Errorf("%s - failed to start worker pool: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Started ui loop and %d workers", logPrefix, d.pool.workerCount))
	return nil
}

// Stop drains both contexts. Work posted afterwards fails with ErrNotRunning.
func (d *Dispatcher) Stop(ctx context.Context) error {
	errPool := d.pool.Stop(ctx)
	errLoop := d.loop.Stop(ctx)
	if errPool != nil && !errors.Is(errPool, ErrNotRunning) {
		return fmt.Errorf("%s - failed to stop worker pool: %w", logPrefix, errPool)
	}
	if errLoop != nil && !errors.Is(errLoop, ErrNotRunning) {
		return fmt.Errorf("%s - failed to stop ui loop: %w", logPrefix, errLoop)
	}
	return nil
}

// Loop returns the UI loop.
func (d *Dispatcher) Loop() *Loop { return d.loop }

// Pool returns the worker pool.
func (d *Dispatcher) Pool() *Pool { return d.pool }

// Effective resolves the thread for call: the call's own preference or the
// hint in its params, then policy, then the dispatcher default.
func (d *Dispatcher) Effective(call *bridge.Call, policy bridge.ThreadType) bridge.ThreadType {
	if call.ThreadType != bridge.ThreadUnspecified {
		return call.ThreadType
	}
	if hint := bridge.ThreadHint(call.Params); hint != bridge.ThreadUnspecified {
		return hint
	}
	if policy != bridge.ThreadUnspecified {
		return policy
	}
	return d.defaultThread
}

// Dispatch runs work on the effective thread for call. When ctx is already on
// that context work runs inline before Dispatch returns; otherwise it is
// scheduled and Dispatch returns immediately. A non-nil error means work was
// not scheduled and will never run.
func (d *Dispatcher) Dispatch(ctx context.Context, call *bridge.Call, policy bridge.ThreadType, work Work) error {
	target := d.Effective(call, policy)
	call.ThreadType = target

	if target == bridge.ThreadCurrent {
		call.ExecutedOn = Current(ctx)
		work(ctx, true)
		return nil
	}

	if d.isOn(ctx, target) {
		call.ExecutedOn = target
		work(ctx, true)
		return nil
	}

	hopped := context.WithValue(ctx, contextKey{}, marker{owner: d, kind: target})
	task := func() {
		call.ExecutedOn = target
		work(hopped, false)
	}

	var err error
	if target == bridge.ThreadWorker {
		err = d.pool.Submit(task)
	} else {
		err = d.loop.Post(task)
	}
	if err != nil {
		return fmt.Errorf("%s - failed to schedule %s on %s: %w", logPrefix, call.Name, target, err)
	}
	return nil
}

// Post runs fn on the given context with a marked ctx, for callers that need
// to be on the UI loop or a worker without going through a call.
func (d *Dispatcher) Post(ctx context.Context, target bridge.ThreadType, fn func(ctx context.Context)) error {
	if target != bridge.ThreadWorker {
		target = bridge.ThreadUI
	}
	marked := context.WithValue(ctx, contextKey{}, marker{owner: d, kind: target})
	if target == bridge.ThreadWorker {
		return d.pool.Submit(func() { fn(marked) })
	}
	return d.loop.Post(func() { fn(marked) })
}

func (d *Dispatcher) isOn(ctx context.Context, target bridge.ThreadType) bool {
	m, ok := ctx.Value(contextKey{}).(marker)
	return ok && m.owner == d && m.kind == target
}
