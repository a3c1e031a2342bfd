package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/registry"
)

const logPrefix = "storage:handlers"

// Registered names.
const (
	MethodGetItem    = "storage.getItem"
	MethodSetItem    = "storage.setItem"
	MethodRemoveItem = "storage.removeItem"
)

// Version is the declared shape version of the storage methods.
const Version = "1.0.0"

const (
	msgEmptyKey     = "Key in the params is empty"
	msgIllegalValue = "Illegal value type"
)

// Register binds the storage methods in the Default layer, running on workers.
func Register(reg *registry.Service, store Store) ([]registry.Token, error) {
	h := &handlers{store: store}
	specs := []registry.Spec{
		{Name: MethodGetItem, Required: []string{"key"}, Handler: registry.Func(h.getItem)},
		{Name: MethodSetItem, Required: []string{"key"}, Handler: registry.Func(h.setItem)},
		{Name: MethodRemoveItem, Required: []string{"key"}, Handler: registry.Func(h.removeItem)},
	}

	tokens := make([]registry.Token, 0, len(specs))
	for _, spec := range specs {
		spec.Layer = registry.LayerDefault
		spec.Thread = bridge.ThreadWorker
		spec.Version = Version
		token, err := reg.Register(spec)
		if err != nil {
			for _, t := range tokens {
				reg.Unregister(t)
			}
			return nil, fmt.Errorf("%s - failed to register %s: %w", logPrefix, spec.Name, err)
		}
		tokens = append(tokens, token)
	}
	slog.Info(fmt.Sprintf("%s - Registered %d storage methods", logPrefix, len(tokens)))
	return tokens, nil
}

type handlers struct {
	store Store
}

func (h *handlers) getItem(ctx context.Context, call *bridge.Call) (any, error) {
	biz, key, err := target(call)
	if err != nil {
		return nil, err
	}
	value, _, err := h.store.Get(ctx, biz, key)
	if err != nil {
		return nil, bridge.NewError(bridge.CodeFailed, fmt.Sprintf("failed to get %s: %v", key, err))
	}
	return map[string]any{"value": value}, nil
}

func (h *handlers) setItem(ctx context.Context, call *bridge.Call) (any, error) {
	biz, key, err := target(call)
	if err != nil {
		return nil, err
	}
	value, _ := call.Param("data")
	if !storable(value) {
		return nil, bridge.NewError(bridge.CodeInvalidParam, msgIllegalValue)
	}

	var ttl time.Duration
	if raw, ok := call.Param("validDuration"); ok && raw != nil {
		secs, ok := raw.(float64)
		if !ok || secs < 0 {
			return nil, bridge.ParamError("validDuration must be a non-negative number")
		}
		ttl = time.Duration(secs * float64(time.Second))
	}

	if err := h.store.Set(ctx, biz, key, value, ttl); err != nil {
		return nil, bridge.NewError(bridge.CodeFailed, fmt.Sprintf("failed to set %s: %v", key, err))
	}
	return map[string]any{}, nil
}

func (h *handlers) removeItem(ctx context.Context, call *bridge.Call) (any, error) {
	biz, key, err := target(call)
	if err != nil {
		return nil, err
	}
	if _, err := h.store.Remove(ctx, biz, key); err != nil {
		return nil, bridge.NewError(bridge.CodeFailed, fmt.Sprintf("failed to remove %s: %v", key, err))
	}
	return map[string]any{}, nil
}

func target(call *bridge.Call) (biz, key string, err error) {
	key, _ = stringParam(call, "key")
	if strings.TrimSpace(key) == "" {
		return "", "", bridge.NewError(bridge.CodeInvalidParam, msgEmptyKey)
	}
	biz, _ = stringParam(call, "biz")
	return biz, key, nil
}

func stringParam(call *bridge.Call, name string) (string, bool) {
	v, ok := call.Param(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// storable accepts the JSON value kinds a surface can round-trip.
func storable(v any) bool {
	switch v.(type) {
	case bool, string, float64, int, int64, []any, map[string]any:
		return true
	default:
		return false
	}
}
