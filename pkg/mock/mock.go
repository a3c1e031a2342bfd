// Package mock lets tests and preview builds intercept calls, results and pushed
// events on a session without touching the registered handlers.
package mock

import (
	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// Interceptor is consulted by the dispatcher around every call on a session that
// has one attached.
type Interceptor interface {
	// InterceptCall may rewrite the call before resolution. Returning nil keeps the original.
	InterceptCall(call *bridge.Call) *bridge.Call
	// InvokeResult short-circuits resolution when it returns true.
	InvokeResult(call *bridge.Call) (*bridge.Result, bool)
	// InterceptResult may rewrite the result before delivery.
	InterceptResult(call *bridge.Call, result bridge.Result) bridge.Result
	// InterceptEvent reports whether a pushed event should be sent.
	InterceptEvent(sessionID, name string, payload any) bool
}

// Passthrough implements Interceptor with no effect. Embed it to override a subset.
type Passthrough struct{}

func (Passthrough) InterceptCall(*bridge.Call) *bridge.Call { return nil }

func (Passthrough) InvokeResult(*bridge.Call) (*bridge.Result, bool) { return nil, false }

func (Passthrough) InterceptResult(_ *bridge.Call, result bridge.Result) bridge.Result {
	return result
}

func (Passthrough) InterceptEvent(string, string, any) bool { return true }
