package semver

import (
	"testing"
)

func TestParseMethodRef(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNS    string
		wantName  string
		wantRange string
		wantErr   bool
	}{
		{name: "plain", input: "storage.getItem", wantName: "storage.getItem"},
		{name: "major only", input: "storage.getItem@1", wantName: "storage.getItem", wantRange: "1"},
		{name: "caret range", input: "storage.getItem@^1.2.0", wantName: "storage.getItem", wantRange: "^1.2.0"},
		{name: "namespace", input: "@biz1/ping", wantNS: "biz1", wantName: "ping"},
		{name: "namespace and range", input: "@biz1/media.capture@~2.0.0", wantNS: "biz1", wantName: "media.capture", wantRange: "~2.0.0"},
		{name: "surrounding spaces", input: "  ping  ", wantName: "ping"},
		{name: "empty", input: "", wantErr: true},
		{name: "empty range", input: "ping@", wantErr: true},
		{name: "bad namespace prefix", input: "@/ping", wantErr: true},
		{name: "invalid name", input: "9lives", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMethodRef(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("semver:parser_test - expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("semver:parser_test - unexpected error: %v", err)
			}
			if got.Namespace != tt.wantNS {
				t.Errorf("semver:parser_test - Namespace = %q, want %q", got.Namespace, tt.wantNS)
			}
			if got.Name != tt.wantName {
				t.Errorf("semver:parser_test - Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Range != tt.wantRange {
				t.Errorf("semver:parser_test - Range = %q, want %q", got.Range, tt.wantRange)
			}
		})
	}
}

func TestMethodRef_String(t *testing.T) {
	ref, err := ParseMethodRef("@biz1/ping@^1.0.0")
	if err != nil {
		t.Fatalf("semver:parser_test - unexpected error: %v", err)
	}
	if ref.String() != "@biz1/ping@^1.0.0" {
		t.Errorf("semver:parser_test - String() = %q", ref.String())
	}
}

func TestIsMajorOnly(t *testing.T) {
	if !IsMajorOnly("3") || IsMajorOnly("3.1") || IsMajorOnly("^3") {
		t.Error("semver:parser_test - IsMajorOnly classification wrong")
	}
	if !IsExactVersion("1.2.3") || IsExactVersion("^1.2.3") {
		t.Error("semver:parser_test - IsExactVersion classification wrong")
	}
}
