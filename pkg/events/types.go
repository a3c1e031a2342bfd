// Package events defines the pushed-event type and the publishers that carry it
// from a session to its surface.
package events

import "time"

// Event is a native-to-surface push addressed to one session.
type Event struct {
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	Payload   any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(sessionID, name string, payload any) *Event {
	return &Event{SessionID: sessionID, Name: name, Payload: payload, Timestamp: time.Now().UTC()}
}
