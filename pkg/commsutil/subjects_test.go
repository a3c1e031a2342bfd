package commsutil

import "testing"

func TestBuildSubjects(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"open default prefix", BuildSessionOpenSubject(""), "bridge.v1.session.open"},
		{"close custom prefix", BuildSessionCloseSubject("app.bridge"), "app.bridge.session.close"},
		{"call", BuildCallSubject("bridge.v1", "s-1"), "bridge.v1.s-1.call"},
		{"call dotted session", BuildCallSubject("", "a.b"), "bridge.v1.a_b.call"},
		{"call wildcard", BuildCallWildcard(""), "bridge.v1.*.call"},
		{"event", BuildEventSubject("", "s-1"), "bridge.v1.s-1.event"},
		{"push", BuildPushSubject("app.bridge"), "app.bridge.push"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("commsutil:subjects_test - got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestSessionFromCallSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
		wantOK  bool
	}{
		{"valid", "bridge.v1.abc.call", "abc", true},
		{"wrong prefix", "other.abc.call", "", false},
		{"event subject", "bridge.v1.abc.event", "", false},
		{"nested token", "bridge.v1.a.b.call", "", false},
		{"empty session", "bridge.v1..call", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SessionFromCallSubject("", tt.subject)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("commsutil:subjects_test - SessionFromCallSubject(%q) = %q, %v", tt.subject, got, ok)
			}
		})
	}
}
