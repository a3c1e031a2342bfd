// Package transport connects surfaces to the dispatcher over COMMS request/reply.
//
// Subjects, under a configurable prefix (default bridge.v1):
//
//	<prefix>.session.open    open a session, reply carries the session id and its subjects
//	<prefix>.session.close   close a session (close calls run before release)
//	<prefix>.<session>.call  one bridge call per request
//	<prefix>.<session>.event events pushed to the surface
//	<prefix>.push            native side pushes an event to one or all sessions
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/commsutil"
	"github.com/morezero/hybrid-bridge/pkg/dispatcher"
	"github.com/morezero/hybrid-bridge/pkg/events"
	"github.com/morezero/hybrid-bridge/pkg/session"
)

const logPrefix = "transport:adapter"

// DefaultRequestTimeout bounds how long a call may take before the adapter answers with a timeout.
const DefaultRequestTimeout = 25 * time.Second

// OpenRequest is the body of a session.open request. Every field is optional.
type OpenRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// OpenResponse answers session.open.
type OpenResponse struct {
	Code         int    `json:"code"`
	Message      string `json:"msg,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	CallSubject  string `json:"callSubject,omitempty"`
	EventSubject string `json:"eventSubject,omitempty"`
}

// CloseRequest is the body of a session.close request.
type CloseRequest struct {
	SessionID string `json:"sessionId"`
}

// PushRequest asks the bridge to push an event. An empty SessionID broadcasts.
type PushRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name"`
	Data      any    `json:"data,omitempty"`
}

// StatusResponse answers close and push requests.
type StatusResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"msg,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
}

// Adapter subscribes the bridge subjects and feeds calls to the dispatcher.
type Adapter struct {
	nc         *comms.Conn
	manager    *session.Manager
	dispatcher *dispatcher.Dispatcher
	prefix     string
	timeout    time.Duration

	mu     sync.Mutex
	subs   []*comms.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAdapterParams configures an Adapter.
type NewAdapterParams struct {
	Conn       *comms.Conn
	Manager    *session.Manager
	Dispatcher *dispatcher.Dispatcher
	// SubjectPrefix defaults to commsutil.SubjectPrefix.
	SubjectPrefix string
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// NewAdapter creates an Adapter. Call Start to subscribe.
func NewAdapter(params NewAdapterParams) *Adapter {
	prefix := params.SubjectPrefix
	if prefix == "" {
		prefix = commsutil.SubjectPrefix
	}
	timeout := params.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Adapter{
		nc:         params.Conn,
		manager:    params.Manager,
		dispatcher: params.Dispatcher,
		prefix:     prefix,
		timeout:    timeout,
	}
}

// Start subscribes every bridge subject. On failure nothing stays subscribed.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return fmt.Errorf("%s - adapter already started", logPrefix)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	routes := []struct {
		subject string
		handler comms.MsgHandler
	}{
		{commsutil.BuildSessionOpenSubject(a.prefix), a.handleOpen},
		{commsutil.BuildSessionCloseSubject(a.prefix), a.handleClose},
		{commsutil.BuildCallWildcard(a.prefix), a.handleCall},
		{commsutil.BuildPushSubject(a.prefix), a.handlePush},
	}
	for _, r := range routes {
		sub, err := a.nc.Subscribe(r.subject, r.handler)
		if err != nil {
			a.unsubscribeLocked()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, r.subject, err)
		}
		a.subs = append(a.subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, r.subject))
	}
	return nil
}

// Stop unsubscribes and cancels in-flight call contexts. It does not close sessions.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unsubscribeLocked()
}

func (a *Adapter) unsubscribeLocked() {
	for _, sub := range a.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to unsubscribe %s: %v", logPrefix, sub.Subject, err))
		}
	}
	a.subs = nil
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *Adapter) baseContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *Adapter) handleOpen(msg *comms.Msg) {
	var req OpenRequest
	if len(msg.Data) > 0 {
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode open request: %v", logPrefix, err))
			a.respond(msg, &OpenResponse{Code: bridge.CodeMalformed, Message: "Failed to decode request"})
			return
		}
	}

	id := req.SessionID
	if id != "" {
		id = commsutil.SafeToken(id)
	}
	s, err := a.manager.Open(session.OpenParams{
		ID:        id,
		Platform:  bridge.ParsePlatform(req.Platform),
		Namespace: req.Namespace,
		Publisher: events.NewCommsPublisher(a.nc, &events.CommsPublisherOpts{SubjectPrefix: a.prefix}),
	})
	if err != nil {
		code := bridge.CodeFailed
		if errors.Is(err, session.ErrExists) {
			code = bridge.CodeAlreadyExists
		}
		a.respond(msg, &OpenResponse{Code: code, Message: err.Error()})
		return
	}

	a.respond(msg, &OpenResponse{
		Code:         bridge.CodeSuccess,
		SessionID:    s.ID(),
		CallSubject:  commsutil.BuildCallSubject(a.prefix, s.ID()),
		EventSubject: commsutil.BuildEventSubject(a.prefix, s.ID()),
	})
}

func (a *Adapter) handleClose(msg *comms.Msg) {
	var req CloseRequest
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil || req.SessionID == "" {
		a.respond(msg, &StatusResponse{Code: bridge.CodeMalformed, Message: "sessionId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(a.baseContext(), a.timeout)
	defer cancel()
	if err := a.manager.Close(ctx, req.SessionID); err != nil {
		a.respond(msg, &StatusResponse{Code: bridge.CodeNotFound, Message: err.Error()})
		return
	}
	a.respond(msg, &StatusResponse{Code: bridge.CodeSuccess})
}

func (a *Adapter) handlePush(msg *comms.Msg) {
	var req PushRequest
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil || req.Name == "" {
		a.respond(msg, &StatusResponse{Code: bridge.CodeMalformed, Message: "event name is required"})
		return
	}

	ctx, cancel := context.WithTimeout(a.baseContext(), a.timeout)
	defer cancel()

	if req.SessionID == "" {
		n := a.manager.SendEvent(ctx, req.Name, req.Data)
		a.respond(msg, &StatusResponse{Code: bridge.CodeSuccess, Delivered: n})
		return
	}

	s, ok := a.manager.Get(req.SessionID)
	if !ok {
		a.respond(msg, &StatusResponse{Code: bridge.CodeNotFound, Message: "unknown session " + req.SessionID})
		return
	}
	if err := s.SendEvent(ctx, req.Name, req.Data); err != nil {
		code := bridge.CodeFailed
		if errors.Is(err, session.ErrReleased) {
			code = bridge.CodeSessionReleased
		}
		a.respond(msg, &StatusResponse{Code: code, Message: err.Error()})
		return
	}
	a.respond(msg, &StatusResponse{Code: bridge.CodeSuccess, Delivered: 1})
}

func (a *Adapter) handleCall(msg *comms.Msg) {
	sessionID, ok := commsutil.SessionFromCallSubject(a.prefix, msg.Subject)
	if !ok {
		slog.Warn(fmt.Sprintf("%s - ignoring call on unexpected subject %s", logPrefix, msg.Subject))
		return
	}

	var req dispatcher.Request
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode call on %s: %v", logPrefix, msg.Subject, err))
		a.respond(msg, dispatcher.NewResponse("", bridge.Fail(bridge.CodeMalformed, "Failed to decode request")))
		return
	}

	s, ok := a.manager.Get(sessionID)
	if !ok {
		// A closed session is indistinguishable from one that was never opened.
		a.respond(msg, dispatcher.NewResponse(req.CallbackID, bridge.Released()))
		return
	}

	ctx, cancel := context.WithTimeout(a.baseContext(), a.timeout)
	var once sync.Once
	reply := func(resp *dispatcher.Response) {
		once.Do(func() {
			a.respond(msg, resp)
			cancel()
		})
	}
	context.AfterFunc(ctx, func() {
		code, text := bridge.CodeTimeout, "call timed out"
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code, text = bridge.CodeCancelled, "call cancelled"
		}
		once.Do(func() {
			slog.Warn(fmt.Sprintf("%s - %s %s on session %s", logPrefix, text, req.Name, sessionID))
			a.respond(msg, dispatcher.NewResponse(req.CallbackID, bridge.Fail(code, text)))
		})
		cancel()
	})

	a.dispatcher.Serve(ctx, s, &req, reply)
}

func (a *Adapter) respond(msg *comms.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := commsutil.EncodePayload(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		data, _ = commsutil.EncodePayload(dispatcher.NewResponse("", bridge.Fail(bridge.CodeInvalidResult, "result is not serializable")))
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Reply, err))
	}
}
