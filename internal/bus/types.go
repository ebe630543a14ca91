// Package bus implements the process-wide publish/subscribe message fabric:
// a single cooperative worker goroutine delivering Message values to
// filtered subscribers, a bounded history ring replayable on subscribe, and
// a secondary named-event emitter sharing the same worker.
package bus

import "time"

// Level is a totally ordered message severity.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Message is the unit carried on the bus.
type Message struct {
	Content      string
	Timestamp    string
	CreationTime time.Time
	Level        Level
	PatternName  string
	Metadata     map[string]interface{}
}

// Filters is a per-subscriber filter map. A message passes iff for every
// (k, v) pair either the message attribute equals v, or, for "level", the
// message level is >= v.
type Filters map[string]interface{}

func (f Filters) matches(m Message) bool {
	for k, v := range f {
		switch k {
		case "level":
			want, ok := v.(Level)
			if !ok || m.Level < want {
				return false
			}
		case "pattern_name":
			if m.PatternName != v {
				return false
			}
		default:
			actual, ok := m.Metadata[k]
			if !ok || actual != v {
				return false
			}
		}
	}
	return true
}

// MessageCallback receives delivered messages. It must not block for long —
// it runs synchronously on the bus worker.
type MessageCallback func(Message)

// EventCallback receives named-event emissions.
type EventCallback func(args ...interface{})

// SubscribeOptions configures history replay for a new subscription.
type SubscribeOptions struct {
	ReplayHistory      bool
	MaxReplayMessages  int
	MinReplayLevel     Level
}
