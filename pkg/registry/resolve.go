package registry

import (
	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// Query describes one resolution request.
type Query struct {
	Name string
	// Namespace carried by the call; empty acts as a wildcard for the bound namespace.
	Namespace string
	// BoundNamespace is the namespace the issuing session is bound to.
	BoundNamespace string
	Platform       bridge.Platform
	VersionRange   string
	// LocalOnly restricts resolution to the Local layer.
	LocalOnly bool
	Local     *Local
}

// QueryFor builds a Query from a call.
func QueryFor(call *bridge.Call, boundNamespace string, local *Local) Query {
	return Query{
		Name:           call.Name,
		Namespace:      call.Namespace,
		BoundNamespace: boundNamespace,
		Platform:       call.Platform,
		VersionRange:   call.VersionRange,
		LocalOnly:      call.LocalOnly,
		Local:          local,
	}
}

// Match is a resolved binding.
type Match struct {
	Spec  Spec
	Token Token
	Layer Layer
}

// Resolve returns the first binding in the order Business(bound namespace),
// Default, Local. With LocalOnly set only the Local layer is consulted.
func (s *Service) Resolve(q Query) (Match, bool) {
	if !q.LocalOnly {
		if m, ok := s.resolveShared(q); ok {
			return m, true
		}
	}
	if q.Local != nil {
		return q.Local.Lookup(q.Name, q.Platform, q.VersionRange)
	}
	return Match{}, false
}

func (s *Service) resolveShared(q Query) (Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if businessApplies(q) {
		k := key{layer: LayerBusiness, namespace: q.BoundNamespace, name: q.Name}
		if b, ok := s.bindings[k]; ok && b.accepts(q.Platform, q.VersionRange) {
			return Match{Spec: b.spec, Token: b.token, Layer: LayerBusiness}, true
		}
	}

	k := key{layer: LayerDefault, name: q.Name}
	if b, ok := s.bindings[k]; ok && b.accepts(q.Platform, q.VersionRange) {
		return Match{Spec: b.spec, Token: b.token, Layer: LayerDefault}, true
	}
	return Match{}, false
}

func businessApplies(q Query) bool {
	if q.BoundNamespace == "" {
		return false
	}
	return q.Namespace == "" || q.Namespace == q.BoundNamespace
}
