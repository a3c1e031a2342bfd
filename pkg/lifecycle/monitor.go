package lifecycle

import (
	"time"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

// Report is what a Monitor receives for each delivered call.
type Report struct {
	Name               string    `json:"name"`
	SessionID          string    `json:"sessionId"`
	Namespace          string    `json:"namespace"`
	Begin              time.Time `json:"begin"`
	End                time.Time `json:"end"`
	Code               int       `json:"code"`
	Message            string    `json:"message,omitempty"`
	HitBusinessHandler bool      `json:"hitBusinessHandler"`
	OnOriginalThread   bool      `json:"onOriginalThread"`
	Thread             string    `json:"thread"`
}

// Monitor receives one report per call, split by outcome.
type Monitor interface {
	OnResolved(r Report)
	OnRejected(r Report)
}

// MonitorObserver adapts a Monitor to the chain. It reports when the result is
// about to be handed to the transport.
type MonitorObserver struct {
	monitor Monitor
	now     func() time.Time
}

// NewMonitorObserver wraps m.
func NewMonitorObserver(m Monitor) *MonitorObserver {
	return &MonitorObserver{monitor: m, now: time.Now}
}

// OnPhase reports at PhaseCallbackInvokeStarted.
func (o *MonitorObserver) OnPhase(phase Phase, call *bridge.Call, result *bridge.Result) {
	if phase != PhaseCallbackInvokeStarted || result == nil {
		return
	}
	r := Report{
		Name:               call.Name,
		SessionID:          call.SessionID,
		Namespace:          call.NamespaceOrDefault(),
		Begin:              call.CreatedAt,
		End:                o.now(),
		Code:               result.Code,
		Message:            result.Message,
		HitBusinessHandler: call.HitBusinessHandler,
		OnOriginalThread:   call.OnOriginalThread,
		Thread:             call.ExecutedOn.String(),
	}
	if result.Succeeded() {
		o.monitor.OnResolved(r)
		return
	}
	o.monitor.OnRejected(r)
}
