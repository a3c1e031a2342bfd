package lifecycle

import (
	"reflect"
	"sync"
	"testing"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const chainTestPrefix = "lifecycle:chain_test"

type recorder struct {
	mu     sync.Mutex
	id     string
	log    *[]string
	events []Event
}

func (r *recorder) OnPhase(phase Phase, _ *bridge.Call, _ *bridge.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, r.id+":"+phase.String())
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type panicker struct{}

func (panicker) OnPhase(Phase, *bridge.Call, *bridge.Result) { panic("observer bug") }
func (panicker) OnEvent(Event)                               { panic("observer bug") }

type veto struct{ reason string }

func (veto) OnPhase(Phase, *bridge.Call, *bridge.Result) {}
func (v veto) ShouldHandle(*bridge.Call) (bool, string)  { return false, v.reason }

type sliceObserver []string

func (sliceObserver) OnPhase(Phase, *bridge.Call, *bridge.Result) {}

func TestChain_InsertionOrder(t *testing.T) {
	var log []string
	a := &recorder{id: "a", log: &log}
	b := &recorder{id: "b", log: &log}
	c := NewChain(a, b)

	c.Notify(PhaseCallStarted, bridge.NewCall("x", nil), nil)
	want := []string{"a:call_started", "b:call_started"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("%s - log = %v, want %v", chainTestPrefix, log, want)
	}
}

func TestChain_PanicIsolation(t *testing.T) {
	var log []string
	a := &recorder{id: "a", log: &log}
	c := NewChain(panicker{}, a)

	c.Notify(PhaseCallEnded, bridge.NewCall("x", nil), &bridge.Result{})
	c.Emit(Event{Kind: EventCustom, Name: "n"})

	if len(log) != 1 || log[0] != "a:call_ended" {
		t.Errorf("%s - observer after a panicking one was not notified: %v", chainTestPrefix, log)
	}
	if len(a.events) != 1 {
		t.Errorf("%s - events delivered = %d, want 1", chainTestPrefix, len(a.events))
	}
}

func TestChain_ReentrantAdd(t *testing.T) {
	var log []string
	late := &recorder{id: "late", log: &log}
	c := NewChain()
	adder := ObserverFunc(func(phase Phase, _ *bridge.Call, _ *bridge.Result) {
		if phase == PhaseCallStarted {
			c.Add(late)
		}
	})
	c.Add(adder)

	call := bridge.NewCall("x", nil)
	c.Notify(PhaseCallStarted, call, nil)
	if len(log) != 0 {
		t.Errorf("%s - observer added mid-iteration must not see the current phase: %v", chainTestPrefix, log)
	}
	c.Notify(PhaseHandlerInvokeStarted, call, nil)
	if len(log) != 1 || log[0] != "late:handler_invoke_started" {
		t.Errorf("%s - late observer should see later phases: %v", chainTestPrefix, log)
	}
}

func TestChain_AddRemove(t *testing.T) {
	var log []string
	a := &recorder{id: "a", log: &log}
	c := NewChain()
	c.Add(a)
	c.Add(a)
	c.Add(nil)
	if c.Len() != 1 {
		t.Errorf("%s - duplicate add should be ignored, Len() = %d", chainTestPrefix, c.Len())
	}
	if !c.Remove(a) {
		t.Errorf("%s - Remove(a) = false", chainTestPrefix)
	}
	if c.Remove(a) {
		t.Errorf("%s - second Remove(a) should be false", chainTestPrefix)
	}

	// Uncomparable observers can be added and never match on removal.
	s := sliceObserver{"x"}
	c.Add(s)
	c.Add(sliceObserver{"x"})
	if c.Len() != 2 {
		t.Errorf("%s - uncomparable observers should both be kept, Len() = %d", chainTestPrefix, c.Len())
	}
	if c.Remove(s) {
		t.Errorf("%s - uncomparable observer cannot be removed by value", chainTestPrefix)
	}
}

func TestChain_ShouldHandle(t *testing.T) {
	c := NewChain(LogObserver{})
	if ok, _ := c.ShouldHandle(bridge.NewCall("x", nil)); !ok {
		t.Errorf("%s - chain without gates should allow", chainTestPrefix)
	}
	c.Add(veto{reason: "blocked by policy"})
	ok, reason := c.ShouldHandle(bridge.NewCall("x", nil))
	if ok || reason != "blocked by policy" {
		t.Errorf("%s - ShouldHandle = %v %q", chainTestPrefix, ok, reason)
	}
}

func TestChain_EmitStampsTime(t *testing.T) {
	var log []string
	a := &recorder{id: "a", log: &log}
	c := NewChain(a)
	c.Emit(Event{Kind: EventSessionOpened, SessionID: "s1"})
	if len(a.events) != 1 || a.events[0].At.IsZero() {
		t.Errorf("%s - event not delivered with timestamp: %+v", chainTestPrefix, a.events)
	}
}

func TestPhase_String(t *testing.T) {
	if PhaseCallbackInvokeStarted.String() != "callback_invoke_started" || Phase(99).String() != "phase(99)" {
		t.Errorf("%s - Phase.String mismatch", chainTestPrefix)
	}
	if EventPushEnded.String() != "push_ended" {
		t.Errorf("%s - EventKind.String mismatch", chainTestPrefix)
	}
}
