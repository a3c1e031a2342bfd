package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// TimingReport summarizes one finished call.
type TimingReport struct {
	Name       string
	SessionID  string
	CallbackID string
	Code       int
	// Marks holds the time each phase was observed.
	Marks map[Phase]time.Time
	// QueueDelay is CallStarted → HandlerInvokeStarted, zero when no handler ran.
	QueueDelay time.Duration
	// HandlerDuration is HandlerInvokeStarted → HandlerInvokeEnded.
	HandlerDuration time.Duration
	// Total is CallStarted → CallEnded.
	Total            time.Duration
	Categories       map[string]string
	OnOriginalThread bool
}

type timingState struct {
	marks      map[Phase]time.Time
	categories map[string]string
	code       int
}

// Timing records per-phase timestamps and category tags, and hands a report
// to sink when the call ends.
type Timing struct {
	mu       sync.Mutex
	inflight map[*bridge.Call]*timingState
	sink     func(TimingReport)
	now      func() time.Time
}

// NewTiming creates a Timing observer reporting to sink.
func NewTiming(sink func(TimingReport)) *Timing {
	return &Timing{
		inflight: make(map[*bridge.Call]*timingState),
		sink:     sink,
		now:      time.Now,
	}
}

// Tag attaches a category to an in-flight call. Tags on unknown calls are dropped.
func (t *Timing) Tag(call *bridge.Call, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.inflight[call]; ok {
		st.categories[key] = value
	}
}

// InFlight returns the number of calls being tracked.
func (t *Timing) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// OnPhase records the phase time.
func (t *Timing) OnPhase(phase Phase, call *bridge.Call, result *bridge.Result) {
	at := t.now()

	t.mu.Lock()
	st, ok := t.inflight[call]
	if !ok {
		if phase != PhaseCallStarted {
			t.mu.Unlock()
			return
		}
		st = &timingState{marks: make(map[Phase]time.Time), categories: callerCategories(call)}
		t.inflight[call] = st
	}
	st.marks[phase] = at
	if result != nil {
		st.code = result.Code
	}
	if phase != PhaseCallEnded {
		t.mu.Unlock()
		return
	}
	delete(t.inflight, call)
	t.mu.Unlock()

	st.categories["namespace"] = call.NamespaceOrDefault()
	st.categories["thread"] = call.ThreadType.String()
	if call.HitBusinessHandler {
		st.categories["layer"] = "business"
	}

	report := TimingReport{
		Name:             call.Name,
		SessionID:        call.SessionID,
		CallbackID:       call.CallbackID,
		Code:             st.code,
		Marks:            st.marks,
		Total:            span(st.marks, PhaseCallStarted, PhaseCallEnded),
		QueueDelay:       span(st.marks, PhaseCallStarted, PhaseHandlerInvokeStarted),
		HandlerDuration:  span(st.marks, PhaseHandlerInvokeStarted, PhaseHandlerInvokeEnded),
		Categories:       st.categories,
		OnOriginalThread: call.OnOriginalThread,
	}
	if t.sink != nil {
		t.sink(report)
	}
}

func span(marks map[Phase]time.Time, from, to Phase) time.Duration {
	a, okA := marks[from]
	b, okB := marks[to]
	if !okA || !okB {
		return 0
	}
	return b.Sub(a)
}

// callerCategories copies the surface-supplied caller info into caller_<key> tags.
func callerCategories(call *bridge.Call) map[string]string {
	out := make(map[string]string)
	info, ok := call.Param(bridge.ParamCallerInfo)
	if !ok {
		return out
	}
	m, ok := info.(map[string]any)
	if !ok {
		return out
	}
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out["caller_"+k] = val
		case float64, bool, int:
			out["caller_"+k] = fmt.Sprint(val)
		}
	}
	return out
}
