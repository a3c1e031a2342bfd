package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/events"
	"github.com/morezero/hybrid-bridge/pkg/lifecycle"
	"github.com/morezero/hybrid-bridge/pkg/registry"
)

const managerLogPrefix = "session:manager"

// InitListener is told about every session right after it opens.
type InitListener func(s *Session)

// ReleaseHook runs on Close before the session is released.
type ReleaseHook func(ctx context.Context, s *Session)

// OpenParams configures a new session.
type OpenParams struct {
	// ID is generated when empty.
	ID        string
	Platform  bridge.Platform
	Namespace string
	Publisher events.Publisher
	Observers []lifecycle.Observer
}

// Manager owns the set of open sessions.
type Manager struct {
	registry    *registry.Service
	observers   []lifecycle.Observer
	releaseHook ReleaseHook

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []InitListener
}

// NewManagerParams configures a Manager.
type NewManagerParams struct {
	Registry *registry.Service
	// Observers are added to every session before its own observers.
	Observers   []lifecycle.Observer
	ReleaseHook ReleaseHook
}

// NewManager creates a Manager.
func NewManager(params NewManagerParams) *Manager {
	reg := params.Registry
	if reg == nil {
		reg = registry.NewService(registry.NewServiceParams{})
	}
	return &Manager{
		registry:    reg,
		observers:   params.Observers,
		releaseHook: params.ReleaseHook,
		sessions:    make(map[string]*Session),
	}
}

// AddInitListener registers l for sessions opened from now on.
func (m *Manager) AddInitListener(l InitListener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Open creates and tracks a session.
func (m *Manager) Open(params OpenParams) (*Session, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := NewSession(NewSessionParams{ID: id, Platform: params.Platform, Registry: m.registry})
	if params.Namespace != "" {
		s.BindNamespace(params.Namespace)
	}
	if params.Publisher != nil {
		s.SetPublisher(params.Publisher)
	}
	for _, o := range m.observers {
		s.AddObserver(o)
	}
	for _, o := range params.Observers {
		s.AddObserver(o)
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s - open %s: %w", managerLogPrefix, id, ErrExists)
	}
	m.sessions[id] = s
	listeners := make([]InitListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		notifyInit(l, s)
	}
	s.chain.Emit(lifecycle.Event{Kind: lifecycle.EventSessionOpened, SessionID: id})
	slog.Info(fmt.Sprintf("%s - Opened session %s (platform=%s, namespace=%q)", managerLogPrefix, id, s.platform, s.Namespace()))
	return s, nil
}

func notifyInit(l InitListener, s *Session) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn(fmt.Sprintf("%s - init listener panicked for session %s: %v", managerLogPrefix, s.id, r))
		}
	}()
	l(s)
}

// Get returns the open session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close stops tracking the session, runs the release hook, then releases it.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s - close %s: %w", managerLogPrefix, id, ErrNotFound)
	}

	if m.releaseHook != nil {
		m.releaseHook(ctx, s)
	}
	s.Release()
	return nil
}

// CloseAll closes every open session.
func (m *Manager) CloseAll(ctx context.Context) int {
	closed := 0
	for _, s := range m.Active() {
		if err := m.Close(ctx, s.ID()); err == nil {
			closed++
		}
	}
	return closed
}

// Active returns the open sessions ordered by creation time.
func (m *Manager) Active() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// SendEvent pushes an event to every open session that has a publisher and
// returns how many accepted it.
func (m *Manager) SendEvent(ctx context.Context, name string, payload any) int {
	delivered := 0
	for _, s := range m.Active() {
		if s.Released() || s.Publisher() == nil {
			continue
		}
		if err := s.SendEvent(ctx, name, payload); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to send %s to session %s: %v", managerLogPrefix, name, s.id, err))
			continue
		}
		delivered++
	}
	return delivered
}
