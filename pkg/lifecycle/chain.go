// Package lifecycle fans call-phase transitions and session events out to independent observers.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const logPrefix = "lifecycle:chain"

// Phase marks a point in a call's pass through the dispatcher.
type Phase int

const (
	PhaseCallStarted Phase = iota + 1
	PhaseHandlerInvokeStarted
	PhaseHandlerInvokeEnded
	PhaseCallbackInvokeStarted
	PhaseCallEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseCallStarted:
		return "call_started"
	case PhaseHandlerInvokeStarted:
		return "handler_invoke_started"
	case PhaseHandlerInvokeEnded:
		return "handler_invoke_ended"
	case PhaseCallbackInvokeStarted:
		return "callback_invoke_started"
	case PhaseCallEnded:
		return "call_ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Observer is notified at each phase. result is nil before a result exists.
// Observers must not retain call or result after returning.
type Observer interface {
	OnPhase(phase Phase, call *bridge.Call, result *bridge.Result)
}

// EventKind classifies out-of-band events.
type EventKind int

const (
	EventSessionOpened EventKind = iota + 1
	EventSessionClosed
	EventPushStarted
	EventPushEnded
	EventCustom
)

func (k EventKind) String() string {
	switch k {
	case EventSessionOpened:
		return "session_opened"
	case EventSessionClosed:
		return "session_closed"
	case EventPushStarted:
		return "push_started"
	case EventPushEnded:
		return "push_ended"
	case EventCustom:
		return "custom"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an out-of-band notification not tied to a single call.
type Event struct {
	Kind      EventKind
	SessionID string
	Name      string
	Payload   any
	At        time.Time
}

// EventObserver is implemented by observers that also want out-of-band events.
type EventObserver interface {
	OnEvent(ev Event)
}

// Gate is implemented by observers that may refuse a call before it is resolved.
// Returning false with a reason answers the call with bridge.CodeIntercepted.
type Gate interface {
	ShouldHandle(call *bridge.Call) (bool, string)
}

// Chain is an ordered set of observers. Notification iterates over a snapshot,
// so observers may add or remove observers from inside a callback.
type Chain struct {
	mu        sync.Mutex
	observers []Observer
}

// NewChain creates a chain seeded with observers, in order.
func NewChain(observers ...Observer) *Chain {
	c := &Chain{}
	for _, o := range observers {
		c.Add(o)
	}
	return c
}

// Add appends o. Adding an observer already present is a no-op.
func (c *Chain) Add(o Observer) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.observers {
		if sameObserver(existing, o) {
			return
		}
	}
	c.observers = append(c.observers, o)
}

// Remove drops o and reports whether it was present.
func (c *Chain) Remove(o Observer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.observers {
		if sameObserver(existing, o) {
			next := make([]Observer, 0, len(c.observers)-1)
			next = append(next, c.observers[:i]...)
			next = append(next, c.observers[i+1:]...)
			c.observers = next
			return true
		}
	}
	return false
}

// Len returns the number of observers.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

// Snapshot returns the current observers in notification order.
func (c *Chain) Snapshot() []Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Observer, len(c.observers))
	copy(out, c.observers)
	return out
}

// Notify delivers phase to every observer in order. A panicking observer is
// logged and skipped.
func (c *Chain) Notify(phase Phase, call *bridge.Call, result *bridge.Result) {
	for _, o := range c.Snapshot() {
		c.safePhase(o, phase, call, result)
	}
}

// Emit delivers ev to every observer implementing EventObserver.
func (c *Chain) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, o := range c.Snapshot() {
		if eo, ok := o.(EventObserver); ok {
			c.safeEvent(eo, ev)
		}
	}
}

// ShouldHandle asks every Gate in order. The first refusal wins.
func (c *Chain) ShouldHandle(call *bridge.Call) (bool, string) {
	for _, o := range c.Snapshot() {
		g, ok := o.(Gate)
		if !ok {
			continue
		}
		if allow, reason := c.safeGate(g, call); !allow {
			return false, reason
		}
	}
	return true, ""
}

func (c *Chain) safePhase(o Observer, phase Phase, call *bridge.Call, result *bridge.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn(fmt.Sprintf("%s - observer %T panicked at %s for %s: %v", logPrefix, o, phase, call.Name, r))
		}
	}()
	o.OnPhase(phase, call, result)
}

func (c *Chain) safeEvent(o EventObserver, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn(fmt.Sprintf("%s - observer %T panicked on %s event %q: %v", logPrefix, o, ev.Kind, ev.Name, r))
		}
	}()
	o.OnEvent(ev)
}

func (c *Chain) safeGate(g Gate, call *bridge.Call) (allow bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn(fmt.Sprintf("%s - gate %T panicked for %s: %v", logPrefix, g, call.Name, r))
			allow, reason = true, ""
		}
	}()
	return g.ShouldHandle(call)
}

// sameObserver compares observers, treating uncomparable dynamic types as distinct.
func sameObserver(a, b Observer) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// FuncObserver adapts a function to Observer. Use the returned pointer for Remove.
type FuncObserver struct {
	fn func(phase Phase, call *bridge.Call, result *bridge.Result)
}

// ObserverFunc wraps fn.
func ObserverFunc(fn func(phase Phase, call *bridge.Call, result *bridge.Result)) *FuncObserver {
	return &FuncObserver{fn: fn}
}

// OnPhase calls the wrapped function.
func (f *FuncObserver) OnPhase(phase Phase, call *bridge.Call, result *bridge.Result) {
	f.fn(phase, call, result)
}
