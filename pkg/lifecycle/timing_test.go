package lifecycle

import (
	"testing"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const timingTestPrefix = "lifecycle:timing_test"

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestTiming_Report(t *testing.T) {
	var got []TimingReport
	tm := NewTiming(func(r TimingReport) { got = append(got, r) })
	tm.now = fixedClock(time.Unix(0, 0), 10*time.Millisecond)

	call := bridge.NewCall("storage.getItem", map[string]any{
		bridge.ParamCallerInfo: map[string]any{"page": "home", "depth": float64(2), "nested": map[string]any{}},
	})
	call.SessionID = "s1"
	result := bridge.OK(nil)

	tm.OnPhase(PhaseCallStarted, call, nil)
	tm.Tag(call, "experiment", "b")
	tm.OnPhase(PhaseHandlerInvokeStarted, call, nil)
	tm.OnPhase(PhaseHandlerInvokeEnded, call, nil)
	tm.OnPhase(PhaseCallbackInvokeStarted, call, &result)
	if tm.InFlight() != 1 {
		t.Fatalf("%s - InFlight = %d, want 1", timingTestPrefix, tm.InFlight())
	}
	tm.OnPhase(PhaseCallEnded, call, &result)

	if len(got) != 1 {
		t.Fatalf("%s - expected 1 report, got %d", timingTestPrefix, len(got))
	}
	r := got[0]
	if r.Total != 40*time.Millisecond {
		t.Errorf("%s - Total = %v, want 40ms", timingTestPrefix, r.Total)
	}
	if r.QueueDelay != 10*time.Millisecond || r.HandlerDuration != 10*time.Millisecond {
		t.Errorf("%s - QueueDelay = %v, HandlerDuration = %v", timingTestPrefix, r.QueueDelay, r.HandlerDuration)
	}
	if r.Categories["caller_page"] != "home" || r.Categories["caller_depth"] != "2" || r.Categories["experiment"] != "b" {
		t.Errorf("%s - categories = %v", timingTestPrefix, r.Categories)
	}
	if _, ok := r.Categories["caller_nested"]; ok {
		t.Errorf("%s - non-scalar caller info should be skipped", timingTestPrefix)
	}
	if r.Categories["namespace"] != bridge.DefaultNamespace {
		t.Errorf("%s - namespace category = %q", timingTestPrefix, r.Categories["namespace"])
	}
	if tm.InFlight() != 0 {
		t.Errorf("%s - call still tracked after end", timingTestPrefix)
	}
}

func TestTiming_UnresolvedCall(t *testing.T) {
	var got []TimingReport
	tm := NewTiming(func(r TimingReport) { got = append(got, r) })
	call := bridge.NewCall("unregistered.method", nil)
	result := bridge.NoHandler(call.Name)

	tm.OnPhase(PhaseCallStarted, call, nil)
	tm.OnPhase(PhaseCallbackInvokeStarted, call, &result)
	tm.OnPhase(PhaseCallEnded, call, &result)

	if len(got) != 1 || got[0].Code != bridge.CodeNoHandler {
		t.Fatalf("%s - report = %+v", timingTestPrefix, got)
	}
	if got[0].HandlerDuration != 0 || got[0].QueueDelay != 0 {
		t.Errorf("%s - handler spans should be zero when no handler ran", timingTestPrefix)
	}
}

func TestTiming_IgnoresUntrackedCalls(t *testing.T) {
	called := false
	tm := NewTiming(func(TimingReport) { called = true })
	tm.OnPhase(PhaseCallEnded, bridge.NewCall("x", nil), nil)
	tm.Tag(bridge.NewCall("x", nil), "k", "v")
	if called || tm.InFlight() != 0 {
		t.Errorf("%s - untracked call should be ignored", timingTestPrefix)
	}
}
