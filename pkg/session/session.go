// Package session holds the per-surface state a call is dispatched against:
// local handlers, the namespace binding, observers, mocks and the release flag.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/events"
	"github.com/morezero/hybrid-bridge/pkg/lifecycle"
	"github.com/morezero/hybrid-bridge/pkg/mock"
	"github.com/morezero/hybrid-bridge/pkg/registry"
)

const logPrefix = "session:session"

var (
	ErrReleased         = errors.New("session released")
	ErrNamespaceUnbound = errors.New("session has no business namespace")
	ErrNoPublisher      = errors.New("session has no event publisher")
	ErrNotFound         = errors.New("session not found")
	ErrExists           = errors.New("session already open")
)

// CloseCall is a call the session asked to have issued when it is closed.
type CloseCall struct {
	Name   string
	Params any
}

// Info is a read-only view of a session for status endpoints.
type Info struct {
	ID            string          `json:"id"`
	Platform      bridge.Platform `json:"platform"`
	Namespace     string          `json:"namespace,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	LocalHandlers int             `json:"localHandlers"`
	Observers     int             `json:"observers"`
	Mocked        bool            `json:"mocked"`
	Released      bool            `json:"released"`
}

// Session is the state of one rendering surface.
type Session struct {
	id        string
	platform  bridge.Platform
	createdAt time.Time
	registry  *registry.Service
	local     *registry.Local
	chain     *lifecycle.Chain

	mu         sync.RWMutex
	namespace  string
	policies   map[string]bridge.ThreadType
	mock       mock.Interceptor
	closeCalls []CloseCall
	publisher  events.Publisher
	business   []registry.Token

	released atomic.Bool
}

// NewSessionParams configures a Session.
type NewSessionParams struct {
	ID       string
	Platform bridge.Platform
	Registry *registry.Service
}

// NewSession creates a session that resolves shared handlers through params.Registry.
func NewSession(params NewSessionParams) *Session {
	platform := params.Platform
	if platform == "" {
		platform = bridge.PlatformOther
	}
	reg := params.Registry
	if reg == nil {
		reg = registry.NewService(registry.NewServiceParams{})
	}
	return &Session{
		id:        params.ID,
		platform:  platform,
		createdAt: time.Now(),
		registry:  reg,
		local:     registry.NewLocal(),
		chain:     lifecycle.NewChain(),
		policies:  make(map[string]bridge.ThreadType),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Platform() bridge.Platform { return s.platform }

// Registry returns the shared registry the session resolves against.
func (s *Session) Registry() *registry.Service { return s.registry }

// BindNamespace attaches the Business scope. The first bind wins: binding the
// same namespace again reports true, a different one is ignored and reports false.
func (s *Session) BindNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.namespace {
	case "":
		s.namespace = ns
		slog.Debug(fmt.Sprintf("%s - Session %s bound to namespace %s", logPrefix, s.id, ns))
		return true
	case ns:
		return true
	default:
		slog.Warn(fmt.Sprintf("%s - Session %s already bound to %s, ignoring rebind to %s", logPrefix, s.id, s.namespace, ns))
		return false
	}
}

// Namespace returns the bound Business namespace, empty when unbound.
func (s *Session) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

// RegisterLocal adds a handler visible only to this session. Re-registering a name replaces it.
func (s *Session) RegisterLocal(spec registry.Spec) (registry.Token, error) {
	if s.Released() {
		return registry.Token{}, fmt.Errorf("%s - register %s: %w", logPrefix, spec.Name, ErrReleased)
	}
	return s.local.Register(spec)
}

// UnregisterLocal removes a local handler. Missing names are a no-op.
func (s *Session) UnregisterLocal(name string) bool {
	return s.local.UnregisterName(name)
}

// RegisterBusiness adds a handler to the shared Business layer under the bound
// namespace. platform narrows the origins it answers; empty keeps spec.Platform.
// The registration is withdrawn when the session is released.
func (s *Session) RegisterBusiness(spec registry.Spec, platform bridge.Platform) (registry.Token, error) {
	if s.Released() {
		return registry.Token{}, fmt.Errorf("%s - register %s: %w", logPrefix, spec.Name, ErrReleased)
	}
	ns := s.Namespace()
	if ns == "" {
		return registry.Token{}, fmt.Errorf("%s - register %s: %w", logPrefix, spec.Name, ErrNamespaceUnbound)
	}
	spec.Layer = registry.LayerBusiness
	spec.Namespace = ns
	if platform != "" {
		spec.Platform = platform
	}

	token, err := s.registry.Register(spec)
	if err != nil {
		return registry.Token{}, err
	}
	s.mu.Lock()
	s.business = append(s.business, token)
	s.mu.Unlock()
	return token, nil
}

// LocalHandlers lists the session's local bindings.
func (s *Session) LocalHandlers() []registry.Entry {
	return s.local.Handlers()
}

// Resolve finds the handler for call using the session's namespace and local layer.
func (s *Session) Resolve(call *bridge.Call) (registry.Match, bool) {
	return s.registry.Resolve(registry.QueryFor(call, s.Namespace(), s.local))
}

// SetThreadPolicy pins calls named name to t. ThreadUnspecified clears the pin.
func (s *Session) SetThreadPolicy(name string, t bridge.ThreadType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == bridge.ThreadUnspecified {
		delete(s.policies, name)
		return
	}
	s.policies[name] = t
}

// ThreadPolicy returns the pinned thread for name, or ThreadUnspecified.
func (s *Session) ThreadPolicy(name string) bridge.ThreadType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[name]
}

// SetMock installs an interceptor; nil removes it. It is a no-op once the session is released.
func (s *Session) SetMock(i mock.Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released.Load() {
		return
	}
	s.mock = i
}

func (s *Session) Mock() mock.Interceptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mock
}

// AddObserver appends o to the session's lifecycle chain.
func (s *Session) AddObserver(o lifecycle.Observer) { s.chain.Add(o) }

// RemoveObserver drops o from the chain.
func (s *Session) RemoveObserver(o lifecycle.Observer) bool { return s.chain.Remove(o) }

func (s *Session) Chain() *lifecycle.Chain { return s.chain }

// AddCloseCall subscribes a call to be issued when the session is closed.
func (s *Session) AddCloseCall(name string, params any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls = append(s.closeCalls, CloseCall{Name: name, Params: params})
}

// CloseCalls returns the subscribed close calls in subscription order.
func (s *Session) CloseCalls() []CloseCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CloseCall, len(s.closeCalls))
	copy(out, s.closeCalls)
	return out
}

// SetPublisher sets the transport used by SendEvent.
func (s *Session) SetPublisher(p events.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

func (s *Session) Publisher() events.Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher
}

// SendEvent pushes an event to the surface. An installed mock may drop it, in
// which case nil is returned without publishing.
func (s *Session) SendEvent(ctx context.Context, name string, payload any) error {
	if s.Released() {
		return fmt.Errorf("%s - send %s: %w", logPrefix, name, ErrReleased)
	}
	s.mu.RLock()
	pub, m := s.publisher, s.mock
	s.mu.RUnlock()
	if pub == nil {
		return fmt.Errorf("%s - send %s: %w", logPrefix, name, ErrNoPublisher)
	}
	if m != nil && !m.InterceptEvent(s.id, name, payload) {
		slog.Debug(fmt.Sprintf("%s - Event %s on session %s dropped by mock", logPrefix, name, s.id))
		return nil
	}

	s.chain.Emit(lifecycle.Event{Kind: lifecycle.EventPushStarted, SessionID: s.id, Name: name, Payload: payload})
	err := pub.Publish(ctx, events.NewEvent(s.id, name, payload))
	s.chain.Emit(lifecycle.Event{Kind: lifecycle.EventPushEnded, SessionID: s.id, Name: name, Payload: err})
	if err != nil {
		return fmt.Errorf("%s - failed to publish %s: %w", logPrefix, name, err)
	}
	return nil
}

// Release tears the session down. Only the first call has an effect and reports true.
func (s *Session) Release() bool {
	if !s.released.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	tokens := s.business
	s.business = nil
	s.mock = nil
	s.mu.Unlock()

	cleared := s.local.Clear()
	withdrawn := 0
	for _, t := range tokens {
		if s.registry.Unregister(t) {
			withdrawn++
		}
	}

	slog.Info(fmt.Sprintf("%s - Released session %s (%d local, %d business handlers removed)", logPrefix, s.id, cleared, withdrawn))
	s.chain.Emit(lifecycle.Event{Kind: lifecycle.EventSessionClosed, SessionID: s.id})
	return true
}

// Released reports whether Release has been called.
func (s *Session) Released() bool { return s.released.Load() }

// Info returns a snapshot for status output.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:            s.id,
		Platform:      s.platform,
		Namespace:     s.namespace,
		CreatedAt:     s.createdAt,
		LocalHandlers: s.local.Len(),
		Observers:     s.chain.Len(),
		Mocked:        s.mock != nil,
		Released:      s.Released(),
	}
}
