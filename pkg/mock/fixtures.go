package mock

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const logPrefix = "mock:fixtures"

// Fixtures answers calls by name from a fixed table and can suppress pushed events.
// Calls without a fixture fall through to the real handlers.
type Fixtures struct {
	Passthrough

	mu      sync.RWMutex
	results map[string]bridge.Result
	muted   map[string]bool
	hits    map[string]int
}

// NewFixtures creates Fixtures seeded with results keyed by call name.
func NewFixtures(results map[string]bridge.Result) *Fixtures {
	f := &Fixtures{
		results: make(map[string]bridge.Result, len(results)),
		muted:   make(map[string]bool),
		hits:    make(map[string]int),
	}
	for name, r := range results {
		f.results[name] = r
	}
	return f
}

// Set installs or replaces the fixture for name.
func (f *Fixtures) Set(name string, result bridge.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = result
}

// Delete removes the fixture for name.
func (f *Fixtures) Delete(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.results, name)
}

// Mute drops pushed events named name.
func (f *Fixtures) Mute(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted[name] = true
}

// Names returns the fixture names, sorted.
func (f *Fixtures) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.results))
	for name := range f.results {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Hits returns how many calls a fixture answered.
func (f *Fixtures) Hits(name string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hits[name]
}

// InvokeResult returns the fixture for call.Name, if any.
func (f *Fixtures) InvokeResult(call *bridge.Call) (*bridge.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[call.Name]
	if !ok {
		return nil, false
	}
	f.hits[call.Name]++
	slog.Debug(fmt.Sprintf("%s - answered %s from fixture (code=%d)", logPrefix, call.Name, r.Code))
	return &r, true
}

// InterceptEvent suppresses muted events.
func (f *Fixtures) InterceptEvent(sessionID, name string, _ any) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.muted[name] {
		slog.Debug(fmt.Sprintf("%s - muted event %s on session %s", logPrefix, name, sessionID))
		return false
	}
	return true
}
