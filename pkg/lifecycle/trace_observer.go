package lifecycle

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const tracerName = "github.com/morezero/hybrid-bridge/pkg/lifecycle"

// TraceObserver opens one span per call at CallStarted and ends it at CallEnded.
// Intermediate phases become span events.
type TraceObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[*bridge.Call]trace.Span
}

// NewTraceObserver uses tp, or the global provider when tp is nil.
func NewTraceObserver(tp trace.TracerProvider) *TraceObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TraceObserver{
		tracer: tp.Tracer(tracerName),
		spans:  make(map[*bridge.Call]trace.Span),
	}
}

// OnPhase maps phases onto the call span.
func (o *TraceObserver) OnPhase(phase Phase, call *bridge.Call, result *bridge.Result) {
	if phase == PhaseCallStarted {
		_, span := o.tracer.Start(context.Background(), "bridge.call "+call.Name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithTimestamp(call.CreatedAt),
			trace.WithAttributes(
				attribute.String("bridge.name", call.Name),
				attribute.String("bridge.session_id", call.SessionID),
				attribute.String("bridge.namespace", call.NamespaceOrDefault()),
				attribute.String("bridge.platform", string(call.Platform)),
				attribute.String("bridge.callback_id", call.CallbackID),
			),
		)
		o.mu.Lock()
		o.spans[call] = span
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	span, ok := o.spans[call]
	if ok && phase == PhaseCallEnded {
		delete(o.spans, call)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	switch phase {
	case PhaseHandlerInvokeStarted:
		span.AddEvent("handler.start", trace.WithAttributes(
			attribute.String("bridge.thread", call.ThreadType.String()),
			attribute.Bool("bridge.on_original_thread", call.OnOriginalThread),
		))
	case PhaseHandlerInvokeEnded:
		span.AddEvent("handler.end")
	case PhaseCallbackInvokeStarted:
		span.AddEvent("callback.start")
		if result != nil {
			span.SetAttributes(
				attribute.Int("bridge.code", result.Code),
				attribute.Bool("bridge.hit_business_handler", call.HitBusinessHandler),
			)
			if !result.Succeeded() {
				span.SetStatus(codes.Error, result.Message)
			}
		}
	case PhaseCallEnded:
		span.End()
	}
}

// OnEvent records pushed and custom events as standalone spans.
func (o *TraceObserver) OnEvent(ev Event) {
	if ev.Kind != EventPushStarted && ev.Kind != EventCustom {
		return
	}
	_, span := o.tracer.Start(context.Background(), "bridge.event "+ev.Name,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithTimestamp(ev.At),
		trace.WithAttributes(
			attribute.String("bridge.session_id", ev.SessionID),
			attribute.String("bridge.event_kind", ev.Kind.String()),
		),
	)
	span.End()
}
