// Package semver provides method reference parsing and version range checks for handler resolution.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// MethodRef holds the parsed components of a method reference string.
type MethodRef struct {
	// Namespace from an "@ns/" prefix; empty when absent.
	Namespace string
	// Name is the method name (e.g., "storage.getItem").
	Name string
	// Range is the version range if specified (e.g., "^1.2.0", "1", ""); empty means any version.
	Range string
	// Raw input string
	Raw string
}

var (
	methodNameRegex   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9._-]*$`)
	namespaceRegex    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseMethodRef parses a method reference string.
//
// Supported formats:
//   - storage.getItem              (plain name)
//   - storage.getItem@1            (major only)
//   - storage.getItem@^1.2.0       (caret range)
//   - @biz1/storage.getItem        (namespace prefix)
//   - @biz1/storage.getItem@~1.2.0 (namespace and range)
func ParseMethodRef(input string) (*MethodRef, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, fmt.Errorf("%s - empty method reference", logPrefix)
	}

	ns, rest := extractNamespace(raw)
	if strings.HasPrefix(raw, "@") && ns == "" {
		return nil, fmt.Errorf("%s - invalid namespace prefix: %s", logPrefix, raw)
	}

	name := rest
	rangeStr := ""
	if at := strings.Index(rest, "@"); at >= 0 {
		name = rest[:at]
		rangeStr = rest[at+1:]
		if rangeStr == "" {
			return nil, fmt.Errorf("%s - empty version range: %s", logPrefix, raw)
		}
	}

	if !ValidateMethodName(name) {
		return nil, fmt.Errorf("%s - invalid method name: %s", logPrefix, raw)
	}
	if ns != "" && !namespaceRegex.MatchString(ns) {
		return nil, fmt.Errorf("%s - invalid namespace: %s", logPrefix, raw)
	}

	return &MethodRef{Namespace: ns, Name: name, Range: rangeStr, Raw: raw}, nil
}

// String rebuilds the canonical reference.
func (r *MethodRef) String() string {
	var b strings.Builder
	if r.Namespace != "" {
		b.WriteString("@" + r.Namespace + "/")
	}
	b.WriteString(r.Name)
	if r.Range != "" {
		b.WriteString("@" + r.Range)
	}
	return b.String()
}

// extractNamespace splits an "@ns/" prefix from a reference.
//
//	"@biz1/storage.getItem" → ("biz1", "storage.getItem")
//	"storage.getItem"       → ("", "storage.getItem")
func extractNamespace(ref string) (string, string) {
	if !strings.HasPrefix(ref, "@") {
		return "", ref
	}
	rest := ref[1:]
	idx := strings.Index(rest, "/")
	if idx <= 0 {
		return "", ref
	}
	return rest[:idx], rest[idx+1:]
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ValidateMethodName validates a method name (letters, digits, dots, hyphens, underscores).
func ValidateMethodName(name string) bool {
	return methodNameRegex.MatchString(name)
}
