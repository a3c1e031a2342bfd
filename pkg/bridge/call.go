// Package bridge defines the call and result model shared by every bridge component.
package bridge

import (
	"strings"
	"time"
)

// Param keys with framework meaning.
const (
	ParamThreadType = "threadType"
	ParamTimestamp  = "__timestamp"
	ParamData       = "data"
	ParamCallerInfo = "_jsb_caller_info"
)

// DefaultNamespace is the namespace reported for calls that carry none.
const DefaultNamespace = "DEFAULT"

// Call is one invocation travelling through the dispatch pipeline.
// It is mutated only by the dispatcher and the thread dispatcher during its single pass.
type Call struct {
	Name      string
	Namespace string
	Params    any

	// SessionID is a non-owning reference to the session that issued the call.
	SessionID  string
	Platform   Platform
	ThreadType ThreadType
	CallbackID string

	CreatedAt time.Time
	// SentAt is the surface-side timestamp from ParamTimestamp, zero when absent.
	SentAt time.Time

	// VersionRange restricts resolution to handlers whose declared version satisfies it.
	VersionRange string
	// LocalOnly scopes resolution to the session's Local handlers.
	LocalOnly bool

	HitBusinessHandler bool
	OnOriginalThread   bool
	// ExecutedOn is the context the handler actually ran on.
	ExecutedOn ThreadType
}

// NewCall creates a call stamped with the local receive time.
func NewCall(name string, params any) *Call {
	c := &Call{
		Name:      name,
		Params:    params,
		Platform:  PlatformOther,
		CreatedAt: time.Now(),
	}
	if ms, ok := numberParam(c.ParamMap(), ParamTimestamp); ok && ms > 0 {
		c.SentAt = time.UnixMilli(int64(ms))
	}
	return c
}

// ParamMap returns params as a map, or nil when params are not an object.
func (c *Call) ParamMap() map[string]any {
	m, _ := c.Params.(map[string]any)
	return m
}

// Param returns the value of a top-level param key.
func (c *Call) Param(key string) (any, bool) {
	m := c.ParamMap()
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// NamespaceOrDefault returns Namespace, or DefaultNamespace when empty.
func (c *Call) NamespaceOrDefault() string {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

// MissingParams returns the required keys absent from the call params.
func (c *Call) MissingParams(required []string) []string {
	if len(required) == 0 {
		return nil
	}
	m := c.ParamMap()
	var missing []string
	for _, key := range required {
		if v, ok := m[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

func numberParam(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Platform identifies the transport flavour a call came from, or a registration scope.
type Platform string

const (
	// PlatformAll is a registration scope matching every origin.
	PlatformAll   Platform = "all"
	PlatformLynx  Platform = "lynx"
	PlatformWeb   Platform = "web"
	PlatformOther Platform = "other"
)

// ParsePlatform maps a transport tag to a Platform. Unknown tags map to PlatformOther.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lynx":
		return PlatformLynx
	case "web", "webview":
		return PlatformWeb
	case "all":
		return PlatformAll
	default:
		return PlatformOther
	}
}

// Matches reports whether a registration scoped to p answers a call from origin.
func (p Platform) Matches(origin Platform) bool {
	return p == "" || p == PlatformAll || p == origin
}
