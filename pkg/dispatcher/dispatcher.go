package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/lifecycle"
	"github.com/morezero/hybrid-bridge/pkg/mock"
	"github.com/morezero/hybrid-bridge/pkg/registry"
	"github.com/morezero/hybrid-bridge/pkg/semver"
	"github.com/morezero/hybrid-bridge/pkg/session"
	"github.com/morezero/hybrid-bridge/pkg/thread"
)

const logPrefix = "dispatcher:dispatch"

// Config holds dispatcher tunables.
type Config struct {
	// CloseCallTimeout bounds how long FlushCloseCalls waits for results.
	CloseCallTimeout time.Duration
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{CloseCallTimeout: 2 * time.Second}
}

// Dispatcher routes calls from transports to handlers.
type Dispatcher struct {
	threads *thread.Dispatcher
	config  Config
}

// NewDispatcherParams configures a Dispatcher.
type NewDispatcherParams struct {
	Threads *thread.Dispatcher
	Config  *Config
}

// NewDispatcher creates a Dispatcher. params.Threads must be started before dispatching.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	cfg := DefaultConfig()
	if params.Config != nil {
		cfg = *params.Config
	}
	return &Dispatcher{threads: params.Threads, config: cfg}
}

// Dispatch runs call against s and hands the result to deliver exactly once.
// deliver may be invoked before Dispatch returns or later from another goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, call *bridge.Call, deliver func(bridge.Result)) {
	call.SessionID = s.ID()
	if call.Platform == "" {
		call.Platform = s.Platform()
	}

	c := &completion{
		call:     call,
		chain:    s.Chain(),
		released: s.Released,
		deliver:  deliver,
	}
	c.chain.Notify(lifecycle.PhaseCallStarted, call, nil)

	if c.finishIfReleased() {
		return
	}

	c.mock = s.Mock()
	if c.mock != nil {
		if rewritten := c.mock.InterceptCall(call); rewritten != nil && rewritten != call {
			applyRewrite(call, rewritten)
		}
		if c.finishIfReleased() {
			return
		}
		if r, ok := c.mock.InvokeResult(call); ok {
			if r == nil {
				c.finish(bridge.Fail(bridge.CodeInvalidResult, "mock returned no result"))
				return
			}
			c.finish(*r)
			return
		}
	}

	if c.finishIfReleased() {
		return
	}

	if allow, reason := c.chain.ShouldHandle(call); !allow {
		c.finish(bridge.Fail(bridge.CodeIntercepted, "intercepted by observer, reason: "+reason))
		return
	}

	match, ok := s.Resolve(call)
	if !ok {
		c.finish(bridge.NoHandler(call.Name))
		return
	}
	call.HitBusinessHandler = match.Layer == registry.LayerBusiness

	policy := s.ThreadPolicy(call.Name)
	if policy == bridge.ThreadUnspecified {
		policy = match.Spec.Thread
	}

	err := d.threads.Dispatch(ctx, call, policy, func(ctx context.Context, onOriginalThread bool) {
		c.run(ctx, match.Spec, onOriginalThread)
	})
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
		c.finish(bridge.DispatchFailed(err))
	}
}

// Serve converts a wire request into a call, dispatches it on s and replies
// with the wire response. A name that cannot be parsed is dispatched as is and
// ends unresolved.
func (d *Dispatcher) Serve(ctx context.Context, s *session.Session, req *Request, reply func(*Response)) {
	call, err := NewCall(req)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - request %s on session %s has an invalid call name: %v", logPrefix, req.CallbackID, s.ID(), err))
	}
	d.Dispatch(ctx, s, call, func(r bridge.Result) {
		reply(NewResponse(call.CallbackID, r))
	})
}

// NewCall builds a call from a wire request. When the name is not a valid method
// reference the error is returned together with a call that carries the raw name.
func NewCall(req *Request) (*bridge.Call, error) {
	call := bridge.NewCall(req.Name, req.Params)
	call.CallbackID = req.CallbackID
	call.Namespace = req.Namespace
	call.LocalOnly = req.LocalOnly
	if req.ThreadHint != "" {
		call.ThreadType = bridge.ParseThreadType(req.ThreadHint)
	}
	if req.Platform != "" {
		call.Platform = bridge.ParsePlatform(req.Platform)
	} else {
		call.Platform = ""
	}

	if req.Name == "" {
		return call, fmt.Errorf("%s - request has no call name", logPrefix)
	}
	ref, err := semver.ParseMethodRef(req.Name)
	if err != nil {
		return call, err
	}
	call.Name = ref.Name
	if call.Namespace == "" {
		call.Namespace = ref.Namespace
	}
	call.VersionRange = ref.Range
	return call, nil
}

// FlushCloseCalls issues the calls s subscribed with AddCloseCall and waits for
// their results, bounded by ctx and Config.CloseCallTimeout. It runs before the
// session is released so the calls still resolve.
func (d *Dispatcher) FlushCloseCalls(ctx context.Context, s *session.Session) {
	calls := s.CloseCalls()
	if len(calls) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.CloseCallTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, cc := range calls {
		call := bridge.NewCall(cc.Name, cc.Params)
		call.CallbackID = uuid.NewString()
		wg.Add(1)
		d.Dispatch(ctx, s, call, func(r bridge.Result) {
			defer wg.Done()
			slog.Debug(fmt.Sprintf("%s - close call %s on session %s finished with code %d", logPrefix, call.Name, s.ID(), r.Code))
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn(fmt.Sprintf("%s - close calls on session %s did not finish: %v", logPrefix, s.ID(), ctx.Err()))
	}
}

func applyRewrite(call, rewritten *bridge.Call) {
	call.Name = rewritten.Name
	call.Namespace = rewritten.Namespace
	call.Params = rewritten.Params
	call.ThreadType = rewritten.ThreadType
	call.VersionRange = rewritten.VersionRange
	call.LocalOnly = rewritten.LocalOnly
}

// completion delivers one call's result exactly once and keeps the phase order
// intact when a handler responds from inside the handler bracket.
type completion struct {
	call     *bridge.Call
	chain    *lifecycle.Chain
	mock     mock.Interceptor
	released func() bool
	deliver  func(bridge.Result)

	mu        sync.Mutex
	responded bool
	inBracket bool
	pending   *bridge.Result
}

func (c *completion) run(ctx context.Context, spec registry.Spec, onOriginalThread bool) {
	c.call.OnOriginalThread = onOriginalThread
	// The session may have been released while the call waited for its context.
	if c.finishIfReleased() {
		return
	}

	c.mu.Lock()
	c.inBracket = true
	c.mu.Unlock()

	c.chain.Notify(lifecycle.PhaseHandlerInvokeStarted, c.call, nil)
	if missing := c.call.MissingParams(spec.Required); len(missing) > 0 {
		c.respond(bridge.MissingParams(missing))
	} else {
		c.invoke(ctx, spec.Handler)
	}
	c.chain.Notify(lifecycle.PhaseHandlerInvokeEnded, c.call, nil)

	c.mu.Lock()
	c.inBracket = false
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		c.finish(*pending)
	}
}

// finishIfReleased answers with the released result, bypassing any mock, once the session is released.
func (c *completion) finishIfReleased() bool {
	if c.released == nil || !c.released() {
		return false
	}
	c.mock = nil
	c.finish(bridge.Released())
	return true
}

func (c *completion) invoke(ctx context.Context, h registry.Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - handler %s panicked: %v", logPrefix, c.call.Name, r))
			c.respond(bridge.Internal(r))
		}
	}()
	h.Handle(ctx, c.call, c.respond)
}

func (c *completion) respond(r bridge.Result) {
	c.mu.Lock()
	if c.responded {
		c.mu.Unlock()
		slog.Warn(fmt.Sprintf("%s - handler %s responded more than once (callback %s), dropping code %d",
			logPrefix, c.call.Name, c.call.CallbackID, r.Code))
		return
	}
	c.responded = true
	if c.inBracket {
		c.pending = &r
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.finish(r)
}

func (c *completion) finish(r bridge.Result) {
	r = r.Normalize()
	if c.mock != nil {
		r = c.mock.InterceptResult(c.call, r)
	}
	c.chain.Notify(lifecycle.PhaseCallbackInvokeStarted, c.call, &r)
	c.safeDeliver(r)
	c.chain.Notify(lifecycle.PhaseCallEnded, c.call, &r)
}

func (c *completion) safeDeliver(r bridge.Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error(fmt.Sprintf("%s - transport callback for %s panicked: %v", logPrefix, c.call.Name, p))
		}
	}()
	if c.deliver != nil {
		c.deliver(r)
	}
}
