// Package registry holds the layered handler registry that resolves bridge call names to handlers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// Layer is the registry layer a handler lives in.
type Layer int

const (
	// LayerDefault holds process-wide handlers shared by every session.
	LayerDefault Layer = iota
	// LayerBusiness holds process-wide handlers partitioned by namespace.
	LayerBusiness
	// LayerLocal holds handlers owned by a single session.
	LayerLocal
)

func (l Layer) String() string {
	switch l {
	case LayerDefault:
		return "default"
	case LayerBusiness:
		return "business"
	case LayerLocal:
		return "local"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// Responder delivers a handler's result. The dispatcher honors only the first call.
type Responder func(bridge.Result)

// Handler answers bridge calls. Implementations must invoke respond at most once,
// either before returning or later from another goroutine.
type Handler interface {
	Handle(ctx context.Context, call *bridge.Call, respond Responder)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call *bridge.Call, respond Responder)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, call *bridge.Call, respond Responder) {
	f(ctx, call, respond)
}

// Func adapts a synchronous function to Handler. A nil error yields a success
// result carrying the returned payload, a non-nil error goes through bridge.ResultFromError.
func Func(fn func(ctx context.Context, call *bridge.Call) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, call *bridge.Call, respond Responder) {
		payload, err := fn(ctx, call)
		if err != nil {
			respond(bridge.ResultFromError(err))
			return
		}
		respond(bridge.OK(payload))
	})
}

// Spec describes one handler registration.
type Spec struct {
	Name      string
	Layer     Layer
	Namespace string
	// Platform scopes the registration; empty means bridge.PlatformAll.
	Platform bridge.Platform
	// Thread overrides the execution context for this name when the session has no policy for it.
	Thread bridge.ThreadType
	// Version is the SemVer of the declared parameter/result shape, optional.
	Version string
	// Required lists param keys that must be present before the handler runs.
	Required []string
	Handler  Handler
}

// Token identifies one successful registration so it can be removed precisely.
type Token struct {
	id        uint64
	Name      string
	Layer     Layer
	Namespace string
}

// Valid reports whether the token came from a successful registration.
func (t Token) Valid() bool {
	return t.id != 0
}

var tokenSeq atomic.Uint64

func newToken(spec Spec) Token {
	return Token{id: tokenSeq.Add(1), Name: spec.Name, Layer: spec.Layer, Namespace: spec.Namespace}
}

// Entry is a read-only view of a registration.
type Entry struct {
	Name         string          `json:"name"`
	Layer        string          `json:"layer"`
	Namespace    string          `json:"namespace,omitempty"`
	Platform     bridge.Platform `json:"platform"`
	Thread       string          `json:"thread"`
	Version      string          `json:"version,omitempty"`
	RegisteredAt time.Time       `json:"registeredAt"`
}

// Collision records a rejected registration.
type Collision struct {
	Name      string    `json:"name"`
	Layer     string    `json:"layer"`
	Namespace string    `json:"namespace,omitempty"`
	At        time.Time `json:"at"`
}

var (
	// ErrCollision is matched by CollisionError via errors.Is.
	ErrCollision = errors.New("handler already registered")
	// ErrInvalidSpec is returned for registrations missing a name or handler.
	ErrInvalidSpec = errors.New("invalid handler spec")
	// ErrLocalLayer is returned when a Local registration is sent to the shared service.
	ErrLocalLayer = errors.New("local handlers are registered on the session")
)

// CollisionError is returned when a Default or Business registration would overwrite an existing one.
type CollisionError struct {
	Spec     Spec
	Existing Token
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("handler %q already registered in %s layer (namespace %q)", e.Spec.Name, e.Spec.Layer, e.Spec.Namespace)
}

// Is reports whether target is ErrCollision.
func (e *CollisionError) Is(target error) bool {
	return target == ErrCollision
}

type binding struct {
	spec         Spec
	token        Token
	registeredAt time.Time
}

func (b *binding) entry() Entry {
	platform := b.spec.Platform
	if platform == "" {
		platform = bridge.PlatformAll
	}
	return Entry{
		Name:         b.spec.Name,
		Layer:        b.spec.Layer.String(),
		Namespace:    b.spec.Namespace,
		Platform:     platform,
		Thread:       b.spec.Thread.String(),
		Version:      b.spec.Version,
		RegisteredAt: b.registeredAt,
	}
}
