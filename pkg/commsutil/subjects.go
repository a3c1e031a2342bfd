package commsutil

import (
	"fmt"
	"strings"
)

// SubjectPrefix is the default root for every bridge subject.
const SubjectPrefix = "bridge.v1"

// BuildSessionOpenSubject is where surfaces request a new session.
func BuildSessionOpenSubject(prefix string) string {
	return fmt.Sprintf("%s.session.open", prefixOrDefault(prefix))
}

// BuildSessionCloseSubject is where surfaces close a session.
func BuildSessionCloseSubject(prefix string) string {
	return fmt.Sprintf("%s.session.close", prefixOrDefault(prefix))
}

// BuildCallSubject is the request subject for calls on one session.
func BuildCallSubject(prefix, sessionID string) string {
	return fmt.Sprintf("%s.%s.call", prefixOrDefault(prefix), SafeToken(sessionID))
}

// BuildCallWildcard matches the call subject of every session.
func BuildCallWildcard(prefix string) string {
	return fmt.Sprintf("%s.*.call", prefixOrDefault(prefix))
}

// BuildEventSubject is where events pushed to one session are published.
func BuildEventSubject(prefix, sessionID string) string {
	return fmt.Sprintf("%s.%s.event", prefixOrDefault(prefix), SafeToken(sessionID))
}

// BuildPushSubject is where native code asks the bridge to push an event to one or all sessions.
func BuildPushSubject(prefix string) string {
	return fmt.Sprintf("%s.push", prefixOrDefault(prefix))
}

// SessionFromCallSubject extracts the session token from a call subject.
func SessionFromCallSubject(prefix, subject string) (string, bool) {
	head := prefixOrDefault(prefix) + "."
	if !strings.HasPrefix(subject, head) || !strings.HasSuffix(subject, ".call") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(subject, head), ".call")
	if id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}

// SafeToken replaces characters that would split or wildcard a subject token.
func SafeToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return SubjectPrefix
	}
	return prefix
}
