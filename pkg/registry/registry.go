package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/semver"
)

const logPrefix = "registry:registry"

const defaultMaxCollisions = 256

// Config holds registry configuration.
type Config struct {
	// MaxCollisions bounds the collision diagnostics kept in memory.
	MaxCollisions int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{MaxCollisions: defaultMaxCollisions}
}

// Service is the process-wide registry owning the Default and Business layers.
// Local layers are owned by sessions and passed in at resolution time.
type Service struct {
	mu         sync.RWMutex
	bindings   map[key]*binding
	collisions []Collision
	config     Config
}

type key struct {
	layer     Layer
	namespace string
	name      string
}

// NewServiceParams holds parameters for NewService.
type NewServiceParams struct {
	Config Config
}

// NewService creates a new Service instance.
func NewService(params NewServiceParams) *Service {
	cfg := params.Config
	if cfg.MaxCollisions <= 0 {
		cfg.MaxCollisions = defaultMaxCollisions
	}
	return &Service{
		bindings: make(map[key]*binding),
		config:   cfg,
	}
}

// Register adds a Default or Business binding. An existing binding for the
// same (layer, namespace, name) is never overwritten: the attempt is recorded
// in Collisions and a *CollisionError is returned.
func (s *Service) Register(spec Spec) (Token, error) {
	if spec.Layer == LayerLocal {
		return Token{}, fmt.Errorf("%s - %q: %w", logPrefix, spec.Name, ErrLocalLayer)
	}
	if err := validateSpec(&spec); err != nil {
		return Token{}, err
	}

	k := key{layer: spec.Layer, namespace: spec.Namespace, name: spec.Name}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bindings[k]; ok {
		s.recordCollisionLocked(spec)
		slog.Warn(fmt.Sprintf("%s - Rejected duplicate registration of %s in %s layer (namespace %q)",
			logPrefix, spec.Name, spec.Layer, spec.Namespace))
		return Token{}, &CollisionError{Spec: spec, Existing: existing.token}
	}

	b := &binding{spec: spec, token: newToken(spec), registeredAt: time.Now()}
	s.bindings[k] = b
	slog.Debug(fmt.Sprintf("%s - Registered %s in %s layer (namespace %q)", logPrefix, spec.Name, spec.Layer, spec.Namespace))
	return b.token, nil
}

// Unregister removes the binding created with token. It returns false when the
// binding is already gone or was replaced by a later registration.
func (s *Service) Unregister(token Token) bool {
	if !token.Valid() {
		return false
	}
	k := key{layer: token.Layer, namespace: token.Namespace, name: token.Name}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[k]
	if !ok || b.token.id != token.id {
		return false
	}
	delete(s.bindings, k)
	return true
}

// UnregisterName removes whatever binding exists for name. Missing names are a no-op.
func (s *Service) UnregisterName(name string, layer Layer, namespace string) bool {
	if layer == LayerDefault {
		namespace = ""
	}
	k := key{layer: layer, namespace: namespace, name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bindings[k]; !ok {
		return false
	}
	delete(s.bindings, k)
	return true
}

// Handlers lists every Default and Business binding, sorted by layer, namespace and name.
func (s *Service) Handlers() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b.entry())
	}
	s.mu.RUnlock()

	sortEntries(out)
	return out
}

// Collisions returns the recorded rejected registrations, oldest first.
func (s *Service) Collisions() []Collision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Collision, len(s.collisions))
	copy(out, s.collisions)
	return out
}

// Len returns the number of shared bindings.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

func (s *Service) recordCollisionLocked(spec Spec) {
	s.collisions = append(s.collisions, Collision{
		Name:      spec.Name,
		Layer:     spec.Layer.String(),
		Namespace: spec.Namespace,
		At:        time.Now(),
	})
	if over := len(s.collisions) - s.config.MaxCollisions; over > 0 {
		s.collisions = append([]Collision(nil), s.collisions[over:]...)
	}
}

// validateSpec checks and normalizes a registration.
func validateSpec(spec *Spec) error {
	if spec.Name == "" || !semver.ValidateMethodName(spec.Name) {
		return fmt.Errorf("%s - invalid handler name %q: %w", logPrefix, spec.Name, ErrInvalidSpec)
	}
	if spec.Handler == nil {
		return fmt.Errorf("%s - handler for %q is nil: %w", logPrefix, spec.Name, ErrInvalidSpec)
	}
	switch spec.Layer {
	case LayerDefault:
		spec.Namespace = ""
	case LayerBusiness:
		if spec.Namespace == "" {
			return fmt.Errorf("%s - business handler %q requires a namespace: %w", logPrefix, spec.Name, ErrInvalidSpec)
		}
	case LayerLocal:
	default:
		return fmt.Errorf("%s - unknown layer %d for %q: %w", logPrefix, int(spec.Layer), spec.Name, ErrInvalidSpec)
	}
	if spec.Version != "" {
		if err := semver.ValidateVersion(spec.Version); err != nil {
			return fmt.Errorf("%s - %q: %v: %w", logPrefix, spec.Name, err, ErrInvalidSpec)
		}
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
}
