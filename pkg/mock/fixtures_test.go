package mock

import (
	"reflect"
	"testing"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

var _ Interceptor = (*Fixtures)(nil)
var _ Interceptor = Passthrough{}

func TestFixtures_InvokeResult(t *testing.T) {
	f := NewFixtures(map[string]bridge.Result{
		"device.info": bridge.OK(map[string]any{"model": "test"}),
	})

	tests := []struct {
		name     string
		call     string
		wantHit  bool
		wantCode int
	}{
		{name: "fixture present", call: "device.info", wantHit: true, wantCode: bridge.CodeSuccess},
		{name: "no fixture falls through", call: "device.battery", wantHit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := f.InvokeResult(bridge.NewCall(tt.call, nil))
			if ok != tt.wantHit {
				t.Fatalf("mock:fixtures_test - hit = %v, want %v", ok, tt.wantHit)
			}
			if ok && r.Code != tt.wantCode {
				t.Errorf("mock:fixtures_test - code = %d, want %d", r.Code, tt.wantCode)
			}
		})
	}
	if f.Hits("device.info") != 1 {
		t.Errorf("mock:fixtures_test - Hits = %d, want 1", f.Hits("device.info"))
	}
}

func TestFixtures_SetDelete(t *testing.T) {
	f := NewFixtures(nil)
	f.Set("b", bridge.Fail(bridge.CodeUnauthorized, "no"))
	f.Set("a", bridge.OK(nil))
	if got := f.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("mock:fixtures_test - Names = %v", got)
	}
	f.Delete("a")
	if _, ok := f.InvokeResult(bridge.NewCall("a", nil)); ok {
		t.Errorf("mock:fixtures_test - deleted fixture still answers")
	}
}

func TestFixtures_MuteEvent(t *testing.T) {
	f := NewFixtures(nil)
	if !f.InterceptEvent("s1", "onShow", nil) {
		t.Errorf("mock:fixtures_test - events pass by default")
	}
	f.Mute("onShow")
	if f.InterceptEvent("s1", "onShow", nil) {
		t.Errorf("mock:fixtures_test - muted event was allowed")
	}
}

func TestPassthrough(t *testing.T) {
	p := Passthrough{}
	call := bridge.NewCall("x", nil)
	if p.InterceptCall(call) != nil {
		t.Errorf("mock:fixtures_test - Passthrough.InterceptCall should return nil")
	}
	r := bridge.Fail(bridge.CodeFailed, "boom")
	if got := p.InterceptResult(call, r); got != r {
		t.Errorf("mock:fixtures_test - Passthrough.InterceptResult changed the result")
	}
}
