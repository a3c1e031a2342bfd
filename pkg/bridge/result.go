package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Status codes carried by Result.Code. Zero is success, negative values are errors.
const (
	CodeSuccess            = 0
	CodeFailed             = -1
	CodeNoHandler          = -2
	CodeInvalidParam       = -3
	CodeInvalidNamespace   = -4
	CodeInvalidResult      = -5
	CodeUnauthorized       = -6
	CodeCancelled          = -7
	CodeTimeout            = -8
	CodeNotFound           = -9
	CodeIntercepted        = -10
	CodeAlreadyExists      = -11
	CodeSessionReleased    = -13
	CodeDispatchFailed     = -14
	CodeInternal           = -1000
	CodeNetworkUnreachable = -1001
	CodeNetworkTimeout     = -1002
	CodeMalformed          = -1003
)

// MessageReleased is the fixed message attached to calls answered after a session was released.
const MessageReleased = "Bridge is released, please check it with container's owner."

var defaultMessages = map[int]string{
	CodeFailed:             "handler failed",
	CodeNoHandler:          "no handler registered",
	CodeInvalidParam:       "invalid parameter",
	CodeInvalidNamespace:   "invalid namespace",
	CodeInvalidResult:      "invalid result",
	CodeUnauthorized:       "unauthorized",
	CodeCancelled:          "cancelled",
	CodeTimeout:            "timeout",
	CodeNotFound:           "not found",
	CodeIntercepted:        "intercepted",
	CodeAlreadyExists:      "already exists",
	CodeSessionReleased:    MessageReleased,
	CodeDispatchFailed:     "dispatch failed",
	CodeInternal:           "internal error",
	CodeNetworkUnreachable: "network unreachable",
	CodeNetworkTimeout:     "network timeout",
	CodeMalformed:          "malformed data",
}

// ErrorKind classifies a Result into the error taxonomy.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindParameter
	KindNoHandler
	KindSessionReleased
	KindDispatchFailure
	KindHandlerInternal
	KindIntercepted
	// KindHandler covers any other handler-specific failure code.
	KindHandler
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindParameter:
		return "parameter"
	case KindNoHandler:
		return "no_handler"
	case KindSessionReleased:
		return "session_released"
	case KindDispatchFailure:
		return "dispatch_failure"
	case KindHandlerInternal:
		return "handler_internal"
	case KindIntercepted:
		return "intercepted"
	default:
		return "handler"
	}
}

// Result is the outcome of one call.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"msg,omitempty"`
	Payload any    `json:"data,omitempty"`
}

// OK returns a success result carrying payload.
func OK(payload any) Result {
	return Result{Code: CodeSuccess, Payload: payload}
}

// Fail returns an error result. An empty message is filled by Normalize.
func Fail(code int, message string) Result {
	return Result{Code: code, Message: message}
}

// Released returns the fixed result for calls arriving after session release.
func Released() Result {
	return Result{Code: CodeSessionReleased, Message: MessageReleased}
}

// NoHandler returns the fixed result for a name that resolved in no layer.
func NoHandler(name string) Result {
	return Result{Code: CodeNoHandler, Message: fmt.Sprintf("no handler registered for %q", name)}
}

// DispatchFailed returns the result for a call whose execution context could not be scheduled.
func DispatchFailed(err error) Result {
	return Result{Code: CodeDispatchFailed, Message: fmt.Sprintf("dispatch failed: %v", err)}
}

// Internal returns the result for a recovered handler panic.
func Internal(recovered any) Result {
	return Result{Code: CodeInternal, Message: fmt.Sprintf("handler panicked: %v", recovered)}
}

// MissingParams returns the parameter error for absent required keys.
func MissingParams(keys []string) Result {
	return Result{Code: CodeInvalidParam, Message: "Missing required parameter(s): " + strings.Join(keys, ", ")}
}

// Succeeded reports whether the result is a success.
func (r Result) Succeeded() bool {
	return r.Code == CodeSuccess
}

// Kind maps the code onto the error taxonomy.
func (r Result) Kind() ErrorKind {
	switch r.Code {
	case CodeSuccess:
		return KindNone
	case CodeInvalidParam:
		return KindParameter
	case CodeNoHandler:
		return KindNoHandler
	case CodeSessionReleased:
		return KindSessionReleased
	case CodeDispatchFailed:
		return KindDispatchFailure
	case CodeInternal:
		return KindHandlerInternal
	case CodeIntercepted:
		return KindIntercepted
	default:
		return KindHandler
	}
}

// Normalize fills a missing message on error results so every delivered
// non-zero code carries text.
func (r Result) Normalize() Result {
	if r.Code != CodeSuccess && r.Message == "" {
		if msg, ok := defaultMessages[r.Code]; ok {
			r.Message = msg
		} else {
			r.Message = fmt.Sprintf("error code %d", r.Code)
		}
	}
	return r
}

// Validate checks the message invariant. NoHandler and SessionReleased are exempt.
func (r Result) Validate() error {
	if r.Code == CodeSuccess {
		return nil
	}
	if r.Message == "" && r.Code != CodeNoHandler && r.Code != CodeSessionReleased {
		return fmt.Errorf("bridge:result - code %d requires a message", r.Code)
	}
	return nil
}

// Error is a typed failure returned by handlers.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError creates a new Error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ParamError creates a parameter validation error.
func ParamError(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParam, Message: fmt.Sprintf(format, args...)}
}

// ResultFromError converts err into a Result. A nil error is a success with no payload.
// Errors that are not *Error map to CodeFailed with the error text.
func ResultFromError(err error) Result {
	if err == nil {
		return OK(nil)
	}
	var be *Error
	if errors.As(err, &be) {
		code := be.Code
		if code == CodeSuccess {
			code = CodeFailed
		}
		return Result{Code: code, Message: be.Message, Payload: be.Details}.Normalize()
	}
	return Result{Code: CodeFailed, Message: err.Error()}
}
