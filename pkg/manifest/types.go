// Package manifest loads the bridge manifest: per-call thread policies, mock
// fixtures and close-event subscriptions applied to every new session.
package manifest

import (
	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// MockEntry is a canned result for one call name. Field names follow the wire envelope.
type MockEntry struct {
	Code    int    `json:"code"`
	Message string `json:"msg,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Result converts the entry into a bridge result.
func (e MockEntry) Result() bridge.Result {
	return bridge.Result{Code: e.Code, Message: e.Message, Payload: e.Data}
}

// CloseCall is a call issued on a session when it is closed.
type CloseCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Manifest is the root manifest document.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	// Threads maps call names to a thread name (ui, worker, current, ...).
	Threads map[string]string `json:"threads,omitempty"`
	// Mocks are only installed when mocking is enabled.
	Mocks       map[string]MockEntry `json:"mocks,omitempty"`
	MutedEvents []string             `json:"mutedEvents,omitempty"`
	CloseCalls  []CloseCall          `json:"closeCalls,omitempty"`
}

// HasMocks reports whether the manifest declares any fixtures or muted events.
func (m *Manifest) HasMocks() bool {
	return len(m.Mocks) > 0 || len(m.MutedEvents) > 0
}
