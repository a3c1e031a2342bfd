// Package dispatcher is the bridge entry point: it turns inbound calls into
// results, running them through mocks, the registry, the thread dispatcher and
// the session's lifecycle chain.
package dispatcher

import (
	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// Request is the JSON envelope a transport receives for one call.
type Request struct {
	CallbackID string `json:"callbackId"`
	// Name may carry a namespace prefix and a version range: [@ns/]name[@range].
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
	Params     any    `json:"params,omitempty"`
	ThreadHint string `json:"threadHint,omitempty"`
	Platform   string `json:"platform,omitempty"`
	LocalOnly  bool   `json:"localOnly,omitempty"`
}

// Response is the JSON envelope sent back for one call.
type Response struct {
	CallbackID string `json:"callbackId,omitempty"`
	Code       int    `json:"code"`
	Message    string `json:"msg,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// NewResponse converts a result into the wire envelope.
func NewResponse(callbackID string, r bridge.Result) *Response {
	return &Response{CallbackID: callbackID, Code: r.Code, Message: r.Message, Data: r.Payload}
}

// Result converts the envelope back into a result.
func (r *Response) Result() bridge.Result {
	return bridge.Result{Code: r.Code, Message: r.Message, Payload: r.Data}
}
