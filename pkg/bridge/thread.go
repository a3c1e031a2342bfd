package bridge

import "strings"

// ThreadType is the execution context a handler runs on.
type ThreadType int

const (
	ThreadUnspecified ThreadType = iota
	ThreadUI
	ThreadWorker
	// ThreadCurrent runs the handler inline on whatever context received the call.
	ThreadCurrent
)

func (t ThreadType) String() string {
	switch t {
	case ThreadUI:
		return "ui"
	case ThreadWorker:
		return "worker"
	case ThreadCurrent:
		return "current"
	default:
		return "unspecified"
	}
}

// ParseThreadType accepts both the short wire names and the native enum names.
func ParseThreadType(s string) ThreadType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UI", "MAIN", "MAIN_THREAD":
		return ThreadUI
	case "WORKER", "BACKGROUND", "IO", "CPU", "BACKGROUND_THREAD", "IO_THREAD", "CPU_THREAD", "NORMAL_THREAD", "SERIAL_THREAD":
		return ThreadWorker
	case "CURRENT", "CURRENT_THREAD":
		return ThreadCurrent
	default:
		return ThreadUnspecified
	}
}

// ThreadHint extracts a thread hint from params, looking at the top level
// first and then inside the nested "data" object.
func ThreadHint(params any) ThreadType {
	m, ok := params.(map[string]any)
	if !ok {
		return ThreadUnspecified
	}
	if s, ok := m[ParamThreadType].(string); ok {
		if t := ParseThreadType(s); t != ThreadUnspecified {
			return t
		}
	}
	if data, ok := m[ParamData].(map[string]any); ok {
		if s, ok := data[ParamThreadType].(string); ok {
			return ParseThreadType(s)
		}
	}
	return ThreadUnspecified
}
