package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/semver"
)

const localLogPrefix = "registry:local"

// Local is the per-session handler layer. Re-registering a name replaces the
// previous binding. It is safe for concurrent use since teardown may race with
// in-flight lookups.
type Local struct {
	mu       sync.RWMutex
	bindings map[string]*binding
}

// NewLocal creates an empty Local layer.
func NewLocal() *Local {
	return &Local{bindings: make(map[string]*binding)}
}

// Register binds spec.Name in this layer, replacing any previous binding.
func (l *Local) Register(spec Spec) (Token, error) {
	spec.Layer = LayerLocal
	spec.Namespace = ""
	if err := validateSpec(&spec); err != nil {
		return Token{}, err
	}

	b := &binding{spec: spec, token: newToken(spec), registeredAt: time.Now()}

	l.mu.Lock()
	_, replaced := l.bindings[spec.Name]
	l.bindings[spec.Name] = b
	l.mu.Unlock()

	if replaced {
		slog.Debug(fmt.Sprintf("%s - Replaced local handler %s", localLogPrefix, spec.Name))
	}
	return b.token, nil
}

// Unregister removes the binding created with token, if it is still current.
func (l *Local) Unregister(token Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bindings[token.Name]
	if !ok || b.token.id != token.id {
		return false
	}
	delete(l.bindings, token.Name)
	return true
}

// UnregisterName removes the binding for name. Missing names are a no-op.
func (l *Local) UnregisterName(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bindings[name]; !ok {
		return false
	}
	delete(l.bindings, name)
	return true
}

// Lookup returns the binding for name when it matches origin and versionRange.
func (l *Local) Lookup(name string, origin bridge.Platform, versionRange string) (Match, bool) {
	l.mu.RLock()
	b, ok := l.bindings[name]
	l.mu.RUnlock()
	if !ok || !b.accepts(origin, versionRange) {
		return Match{}, false
	}
	return Match{Spec: b.spec, Token: b.token, Layer: LayerLocal}, true
}

// Clear drops every binding and returns how many were removed.
func (l *Local) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.bindings)
	l.bindings = make(map[string]*binding)
	return n
}

// Len returns the number of bindings.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bindings)
}

// Handlers lists the bindings sorted by name.
func (l *Local) Handlers() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.bindings))
	for _, b := range l.bindings {
		out = append(out, b.entry())
	}
	l.mu.RUnlock()
	sortEntries(out)
	return out
}

func (b *binding) accepts(origin bridge.Platform, versionRange string) bool {
	if !b.spec.Platform.Matches(origin) {
		return false
	}
	return semver.SatisfiesRange(b.spec.Version, versionRange)
}
