package transport

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
	"github.com/morezero/hybrid-bridge/pkg/dispatcher"
	"github.com/morezero/hybrid-bridge/pkg/registry"
	"github.com/morezero/hybrid-bridge/pkg/session"
	"github.com/morezero/hybrid-bridge/pkg/thread"
)

const testPrefix = "transport:adapter_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) *comms.Conn {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", testPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", testPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", testPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

type fixture struct {
	nc      *comms.Conn
	manager *session.Manager
	flushed atomic.Int32
}

func newFixture(t *testing.T, port int) *fixture {
	t.Helper()
	f := &fixture{nc: startTestServer(t, port)}

	threads := thread.NewDispatcher(thread.Options{})
	if err := threads.Start(); err != nil {
		t.Fatalf("%s - failed to start threads: %v", testPrefix, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		threads.Stop(ctx)
	})

	reg := registry.NewService(registry.NewServiceParams{})
	specs := []registry.Spec{
		{Name: "echo", Thread: bridge.ThreadWorker, Handler: registry.Func(func(_ context.Context, call *bridge.Call) (any, error) {
			return call.Params, nil
		})},
		{Name: "never", Handler: registry.HandlerFunc(func(context.Context, *bridge.Call, registry.Responder) {})},
		{Name: "analytics.flush", Handler: registry.Func(func(context.Context, *bridge.Call) (any, error) {
			f.flushed.Add(1)
			return nil, nil
		})},
	}
	for _, spec := range specs {
		if _, err := reg.Register(spec); err != nil {
			t.Fatalf("%s - Register(%s) failed: %v", testPrefix, spec.Name, err)
		}
	}

	disp := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{Threads: threads})
	f.manager = session.NewManager(session.NewManagerParams{Registry: reg, ReleaseHook: disp.FlushCloseCalls})

	adapter := NewAdapter(NewAdapterParams{
		Conn:           f.nc,
		Manager:        f.manager,
		Dispatcher:     disp,
		RequestTimeout: 200 * time.Millisecond,
	})
	if err := adapter.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", testPrefix, err)
	}
	t.Cleanup(adapter.Stop)
	return f
}

func (f *fixture) request(t *testing.T, subject string, body string, out any) {
	t.Helper()
	msg, err := f.nc.Request(subject, []byte(body), 2*time.Second)
	if err != nil {
		t.Fatalf("%s - request to %s failed: %v", testPrefix, subject, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		t.Fatalf("%s - failed to decode reply %s: %v", testPrefix, msg.Data, err)
	}
}

func TestAdapter_SessionAndCalls(t *testing.T) {
	f := newFixture(t, 14240)

	var opened OpenResponse
	f.request(t, "bridge.v1.session.open", `{"sessionId":"s1","platform":"web"}`, &opened)
	if opened.Code != 0 || opened.SessionID != "s1" || opened.CallSubject != "bridge.v1.s1.call" || opened.EventSubject != "bridge.v1.s1.event" {
		t.Fatalf("%s - open response = %+v", testPrefix, opened)
	}

	var dup OpenResponse
	f.request(t, "bridge.v1.session.open", `{"sessionId":"s1"}`, &dup)
	if dup.Code != bridge.CodeAlreadyExists {
		t.Errorf("%s - duplicate open code = %d", testPrefix, dup.Code)
	}

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantCB   string
	}{
		{"echo", `{"callbackId":"cb1","name":"echo","params":{"a":1}}`, bridge.CodeSuccess, "cb1"},
		{"unknown name", `{"callbackId":"cb2","name":"nope"}`, bridge.CodeNoHandler, "cb2"},
		{"malformed json", `{"callbackId":`, bridge.CodeMalformed, ""},
		{"missing name", `{"callbackId":"cb3"}`, bridge.CodeNoHandler, "cb3"},
		{"handler never responds", `{"callbackId":"cb4","name":"never"}`, bridge.CodeTimeout, "cb4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp dispatcher.Response
			f.request(t, opened.CallSubject, tt.body, &resp)
			if resp.Code != tt.wantCode || resp.CallbackID != tt.wantCB {
				t.Errorf("%s - response = %+v, want code %d callback %q", testPrefix, resp, tt.wantCode, tt.wantCB)
			}
		})
	}

	var echoed dispatcher.Response
	f.request(t, opened.CallSubject, `{"callbackId":"cb5","name":"echo","params":{"a":1}}`, &echoed)
	if data, ok := echoed.Data.(map[string]any); !ok || data["a"] != 1.0 {
		t.Errorf("%s - echo data = %#v", testPrefix, echoed.Data)
	}
}

func TestAdapter_PushAndClose(t *testing.T) {
	f := newFixture(t, 14241)

	var opened OpenResponse
	f.request(t, "bridge.v1.session.open", `{}`, &opened)
	if opened.Code != 0 || opened.SessionID == "" {
		t.Fatalf("%s - open response = %+v", testPrefix, opened)
	}
	s, ok := f.manager.Get(opened.SessionID)
	if !ok {
		t.Fatalf("%s - session %s not tracked", testPrefix, opened.SessionID)
	}
	s.AddCloseCall("analytics.flush", nil)

	received := make(chan []byte, 1)
	sub, err := f.nc.Subscribe(opened.EventSubject, func(msg *comms.Msg) { received <- msg.Data })
	if err != nil {
		t.Fatalf("%s - subscribe failed: %v", testPrefix, err)
	}
	defer sub.Unsubscribe()
	f.nc.Flush()

	var pushed StatusResponse
	f.request(t, "bridge.v1.push", `{"sessionId":"`+opened.SessionID+`","name":"onShow","data":{"page":"home"}}`, &pushed)
	if pushed.Code != 0 || pushed.Delivered != 1 {
		t.Errorf("%s - push response = %+v", testPrefix, pushed)
	}
	select {
	case data := <-received:
		var ev map[string]any
		json.Unmarshal(data, &ev)
		if ev["name"] != "onShow" || ev["sessionId"] != opened.SessionID {
			t.Errorf("%s - event = %s", testPrefix, data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s - pushed event not received", testPrefix)
	}

	var broadcast StatusResponse
	f.request(t, "bridge.v1.push", `{"name":"onNetworkChange"}`, &broadcast)
	if broadcast.Code != 0 || broadcast.Delivered != 1 {
		t.Errorf("%s - broadcast response = %+v", testPrefix, broadcast)
	}

	var closed StatusResponse
	f.request(t, "bridge.v1.session.close", `{"sessionId":"`+opened.SessionID+`"}`, &closed)
	if closed.Code != 0 {
		t.Fatalf("%s - close response = %+v", testPrefix, closed)
	}
	if f.flushed.Load() != 1 {
		t.Errorf("%s - close call ran %d times", testPrefix, f.flushed.Load())
	}

	var after dispatcher.Response
	f.request(t, opened.CallSubject, `{"callbackId":"late","name":"echo"}`, &after)
	if after.Code != bridge.CodeSessionReleased || after.Message != bridge.MessageReleased {
		t.Errorf("%s - call after close = %+v", testPrefix, after)
	}

	var again StatusResponse
	f.request(t, "bridge.v1.session.close", `{"sessionId":"`+opened.SessionID+`"}`, &again)
	if again.Code != bridge.CodeNotFound {
		t.Errorf("%s - second close code = %d", testPrefix, again.Code)
	}
}

// Two sessions register the same local name; concurrent calls on each reach only their own handler.
func TestAdapter_ConcurrentSessions(t *testing.T) {
	f := newFixture(t, 14242)

	ids := []string{"A", "B"}
	for _, id := range ids {
		var opened OpenResponse
		f.request(t, "bridge.v1.session.open", `{"sessionId":"`+id+`"}`, &opened)
		s, ok := f.manager.Get(opened.SessionID)
		if !ok {
			t.Fatalf("%s - session %s not opened: %+v", testPrefix, id, opened)
		}
		owner := id
		if _, err := s.RegisterLocal(registry.Spec{Name: "ping", Handler: registry.Func(func(context.Context, *bridge.Call) (any, error) {
			return owner, nil
		})}); err != nil {
			t.Fatalf("%s - RegisterLocal failed: %v", testPrefix, err)
		}
	}

	const perSession = 25
	errs := make(chan string, 2*perSession)
	done := make(chan struct{}, 2*perSession)
	for _, id := range ids {
		for i := 0; i < perSession; i++ {
			go func(id string) {
				defer func() { done <- struct{}{} }()
				msg, err := f.nc.Request("bridge.v1."+id+".call", []byte(`{"name":"ping","params":{"threadType":"worker"}}`), 2*time.Second)
				if err != nil {
					errs <- err.Error()
					return
				}
				var resp dispatcher.Response
				if err := json.Unmarshal(msg.Data, &resp); err != nil || resp.Data != id {
					errs <- id + " got " + string(msg.Data)
				}
			}(id)
		}
	}
	for i := 0; i < 2*perSession; i++ {
		<-done
	}
	close(errs)
	for e := range errs {
		t.Errorf("%s - %s", testPrefix, e)
	}
}
