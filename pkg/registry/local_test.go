package registry

import (
	"testing"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

func TestLocal_LastRegistrationWins(t *testing.T) {
	l := NewLocal()
	first, err := l.Register(Spec{Name: "ping", Version: "1.0.0", Handler: nopHandler()})
	if err != nil {
		t.Fatalf("registry:local_test - unexpected error: %v", err)
	}
	second, err := l.Register(Spec{Name: "ping", Version: "2.0.0", Handler: nopHandler()})
	if err != nil {
		t.Fatalf("registry:local_test - re-register should succeed: %v", err)
	}

	m, ok := l.Lookup("ping", bridge.PlatformOther, "")
	if !ok || m.Spec.Version != "2.0.0" || m.Token != second {
		t.Errorf("registry:local_test - expected second registration, got %+v", m)
	}
	if l.Unregister(first) {
		t.Errorf("registry:local_test - replaced token must not unregister")
	}
	if l.Len() != 1 {
		t.Errorf("registry:local_test - Len() = %d, want 1", l.Len())
	}
	if !l.Unregister(second) {
		t.Errorf("registry:local_test - current token should unregister")
	}
}

func TestLocal_NamespaceAndLayerForced(t *testing.T) {
	l := NewLocal()
	tok, err := l.Register(Spec{Name: "ping", Layer: LayerBusiness, Namespace: "biz1", Handler: nopHandler()})
	if err != nil {
		t.Fatalf("registry:local_test - unexpected error: %v", err)
	}
	if tok.Layer != LayerLocal || tok.Namespace != "" {
		t.Errorf("registry:local_test - token = %+v, want local layer without namespace", tok)
	}
}

func TestLocal_ClearAndUnregisterName(t *testing.T) {
	l := NewLocal()
	l.Register(Spec{Name: "a", Handler: nopHandler()})
	l.Register(Spec{Name: "b", Handler: nopHandler()})

	if l.UnregisterName("missing") {
		t.Errorf("registry:local_test - missing name should be a no-op")
	}
	if !l.UnregisterName("a") {
		t.Errorf("registry:local_test - UnregisterName(a) = false")
	}
	if n := l.Clear(); n != 1 {
		t.Errorf("registry:local_test - Clear() = %d, want 1", n)
	}
	if _, ok := l.Lookup("b", bridge.PlatformOther, ""); ok {
		t.Errorf("registry:local_test - lookup after Clear should miss")
	}
	if len(l.Handlers()) != 0 {
		t.Errorf("registry:local_test - Handlers() not empty after Clear")
	}
}

func TestLocal_InvalidSpec(t *testing.T) {
	l := NewLocal()
	if _, err := l.Register(Spec{Name: "x"}); err == nil {
		t.Errorf("registry:local_test - nil handler should be rejected")
	}
}
