package lifecycle

import (
	"fmt"
	"log/slog"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const logObserverLogPrefix = "lifecycle:log_observer"

// LogObserver writes one debug line per phase and per event.
type LogObserver struct{}

// OnPhase logs the phase.
func (LogObserver) OnPhase(phase Phase, call *bridge.Call, result *bridge.Result) {
	if result == nil {
		slog.Debug(fmt.Sprintf("%s - %s name=%s session=%s callback=%s", logObserverLogPrefix, phase, call.Name, call.SessionID, call.CallbackID))
		return
	}
	slog.Debug(fmt.Sprintf("%s - %s name=%s session=%s callback=%s code=%d", logObserverLogPrefix, phase, call.Name, call.SessionID, call.CallbackID, result.Code))
}

// OnEvent logs the event.
func (LogObserver) OnEvent(ev Event) {
	slog.Debug(fmt.Sprintf("%s - event %s name=%q session=%s", logObserverLogPrefix, ev.Kind, ev.Name, ev.SessionID))
}
