package registry

import (
	"context"
	"testing"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const resolveTestPrefix = "registry:resolve_test"

func mustRegister(t *testing.T, s *Service, spec Spec) Token {
	t.Helper()
	if spec.Handler == nil {
		spec.Handler = nopHandler()
	}
	tok, err := s.Register(spec)
	if err != nil {
		t.Fatalf("%s - register %s: %v", resolveTestPrefix, spec.Name, err)
	}
	return tok
}

func TestResolve_Order(t *testing.T) {
	s := NewService(NewServiceParams{})
	mustRegister(t, s, Spec{Name: "ping", Layer: LayerDefault})
	mustRegister(t, s, Spec{Name: "ping", Layer: LayerBusiness, Namespace: "biz1"})
	local := NewLocal()
	if _, err := local.Register(Spec{Name: "ping", Handler: nopHandler()}); err != nil {
		t.Fatalf("%s - local register: %v", resolveTestPrefix, err)
	}
	if _, err := local.Register(Spec{Name: "onlyLocal", Handler: nopHandler()}); err != nil {
		t.Fatalf("%s - local register: %v", resolveTestPrefix, err)
	}

	tests := []struct {
		name      string
		query     Query
		wantLayer Layer
		wantFound bool
	}{
		{"bound namespace matches", Query{Name: "ping", Namespace: "biz1", BoundNamespace: "biz1", Local: local}, LayerBusiness, true},
		{"empty namespace is wildcard", Query{Name: "ping", BoundNamespace: "biz1", Local: local}, LayerBusiness, true},
		{"foreign namespace skips business", Query{Name: "ping", Namespace: "biz2", BoundNamespace: "biz1", Local: local}, LayerDefault, true},
		{"unbound session skips business", Query{Name: "ping", Namespace: "biz1", Local: local}, LayerDefault, true},
		{"local fallback", Query{Name: "onlyLocal", Local: local}, LayerLocal, true},
		{"local only scope", Query{Name: "ping", BoundNamespace: "biz1", LocalOnly: true, Local: local}, LayerLocal, true},
		{"local only without local layer", Query{Name: "ping", LocalOnly: true}, 0, false},
		{"unknown name", Query{Name: "unregistered.method", Local: local}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := s.Resolve(tt.query)
			if ok != tt.wantFound {
				t.Fatalf("%s - found = %v, want %v", resolveTestPrefix, ok, tt.wantFound)
			}
			if ok && m.Layer != tt.wantLayer {
				t.Errorf("%s - layer = %s, want %s", resolveTestPrefix, m.Layer, tt.wantLayer)
			}
		})
	}
}

func TestResolve_PlatformScope(t *testing.T) {
	s := NewService(NewServiceParams{})
	mustRegister(t, s, Spec{Name: "media.capture", Platform: bridge.PlatformLynx})

	if _, ok := s.Resolve(Query{Name: "media.capture", Platform: bridge.PlatformLynx}); !ok {
		t.Errorf("%s - lynx call should resolve lynx-scoped handler", resolveTestPrefix)
	}
	if _, ok := s.Resolve(Query{Name: "media.capture", Platform: bridge.PlatformWeb}); ok {
		t.Errorf("%s - web call must not resolve lynx-scoped handler", resolveTestPrefix)
	}
}

func TestResolve_VersionRange(t *testing.T) {
	s := NewService(NewServiceParams{})
	mustRegister(t, s, Spec{Name: "file.upload", Version: "2.1.0"})
	local := NewLocal()
	local.Register(Spec{Name: "file.upload", Version: "1.4.0", Handler: nopHandler()})

	m, ok := s.Resolve(Query{Name: "file.upload", VersionRange: "^2.0.0", Local: local})
	if !ok || m.Layer != LayerDefault {
		t.Fatalf("%s - ^2 should hit default layer, got %v %v", resolveTestPrefix, m.Layer, ok)
	}
	m, ok = s.Resolve(Query{Name: "file.upload", VersionRange: "1", Local: local})
	if !ok || m.Layer != LayerLocal {
		t.Fatalf("%s - major 1 should fall through to local, got %v %v", resolveTestPrefix, m.Layer, ok)
	}
	if _, ok := s.Resolve(Query{Name: "file.upload", VersionRange: "^3", Local: local}); ok {
		t.Errorf("%s - ^3 should not resolve", resolveTestPrefix)
	}
}

func TestQueryFor(t *testing.T) {
	call := bridge.NewCall("ping", nil)
	call.Namespace = "biz1"
	call.Platform = bridge.PlatformWeb
	call.VersionRange = "1"
	local := NewLocal()
	q := QueryFor(call, "biz1", local)
	if q.Name != "ping" || q.Namespace != "biz1" || q.BoundNamespace != "biz1" || q.Platform != bridge.PlatformWeb || q.VersionRange != "1" || q.Local != local {
		t.Errorf("%s - QueryFor = %+v", resolveTestPrefix, q)
	}
}

func TestFunc_Adapter(t *testing.T) {
	var got bridge.Result
	h := Func(func(_ context.Context, call *bridge.Call) (any, error) {
		return map[string]any{"echo": call.Name}, nil
	})
	h.Handle(context.Background(), bridge.NewCall("echo", nil), func(r bridge.Result) { got = r })
	if got.Code != bridge.CodeSuccess {
		t.Errorf("%s - code = %d", resolveTestPrefix, got.Code)
	}

	h = Func(func(_ context.Context, _ *bridge.Call) (any, error) {
		return nil, bridge.ParamError("bad %s", "input")
	})
	h.Handle(context.Background(), bridge.NewCall("echo", nil), func(r bridge.Result) { got = r })
	if got.Code != bridge.CodeInvalidParam || got.Message != "bad input" {
		t.Errorf("%s - error result = %+v", resolveTestPrefix, got)
	}
}
