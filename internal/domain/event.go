package domain

import "time"

// EventKind is the tagged-variant name of an Event. It is matched
// case-sensitively by Timeline.FindEventsByKind and rendered verbatim as
// the SSE `event:` field.
type EventKind string

const (
	EventRuntimeLifecycle       EventKind = "RuntimeLifecycle"
	EventImperativeExecuted     EventKind = "ImperativeExecuted"
	EventIdeaRegistered         EventKind = "IdeaRegistered"
	EventContractRegistered     EventKind = "ContractRegistered"
	EventRuleVerdict            EventKind = "RuleVerdict"
	EventOrchestrationStarted   EventKind = "OrchestrationStarted"
	EventOrchestrationCompleted EventKind = "OrchestrationCompleted"
	EventSimulationCompleted    EventKind = "SimulationCompleted"
	EventErrorOccurred          EventKind = "ErrorOccurred"
)

// DefaultChannel is the channel every Event belongs to unless the caller
// adds more.
const DefaultChannel = "default"

// Event is a structured, immutable record of something that happened
// inside the runtime. Id is assigned by the Timeline on Append and is
// strictly monotonic per process.
type Event struct {
	ID        uint64         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      EventKind      `json:"kind"`
	Channels  []string       `json:"channels"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an Event with the default channel and an empty payload
// map ready for population. Timestamp and ID are left zero; Timeline.Append
// fills them in.
func NewEvent(kind EventKind, channels ...string) Event {
	if len(channels) == 0 {
		channels = []string{DefaultChannel}
	}
	return Event{
		Kind:     kind,
		Channels: channels,
		Payload:  make(map[string]any),
	}
}

// RuntimeLifecycleEvent builds a RuntimeLifecycle event.
func RuntimeLifecycleEvent(status string) Event {
	e := NewEvent(EventRuntimeLifecycle)
	e.Payload["status"] = status
	return e
}

// ImperativeExecutedEvent builds an ImperativeExecuted event.
func ImperativeExecutedEvent(kind CommandKind) Event {
	e := NewEvent(EventImperativeExecuted)
	e.Payload["kind"] = string(kind)
	return e
}

// IdeaRegisteredEvent builds an IdeaRegistered event.
func IdeaRegisteredEvent(id string) Event {
	e := NewEvent(EventIdeaRegistered)
	e.Payload["id"] = id
	return e
}

// ContractRegisteredEvent builds a ContractRegistered event.
func ContractRegisteredEvent(id string) Event {
	e := NewEvent(EventContractRegistered)
	e.Payload["id"] = id
	return e
}

// RuleVerdictEvent builds a RuleVerdict event.
func RuleVerdictEvent(rule string, verdict Verdict) Event {
	e := NewEvent(EventRuleVerdict)
	e.Payload["rule"] = rule
	e.Payload["verdict"] = verdict.String()
	return e
}

// OrchestrationStartedEvent builds an OrchestrationStarted event.
func OrchestrationStartedEvent(mode string, concurrency int) Event {
	e := NewEvent(EventOrchestrationStarted)
	e.Payload["mode"] = mode
	e.Payload["concurrency"] = concurrency
	return e
}

// OrchestrationCompletedEvent builds an OrchestrationCompleted event.
func OrchestrationCompletedEvent(mode string, concurrency int, durationMs int64) Event {
	e := NewEvent(EventOrchestrationCompleted)
	e.Payload["mode"] = mode
	e.Payload["concurrency"] = concurrency
	e.Payload["duration_ms"] = durationMs
	return e
}

// SimulationCompletedEvent builds a SimulationCompleted event.
func SimulationCompletedEvent(id string, rounds int) Event {
	e := NewEvent(EventSimulationCompleted)
	e.Payload["id"] = id
	e.Payload["rounds"] = rounds
	return e
}

// ErrorOccurredEvent builds an ErrorOccurred event.
func ErrorOccurredEvent(context, message string) Event {
	e := NewEvent(EventErrorOccurred)
	e.Payload["context"] = context
	e.Payload["message"] = message
	return e
}

// HasChannel reports whether the event is published to the given channel.
func (e Event) HasChannel(channel string) bool {
	for _, c := range e.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// Intersects reports whether any of the event's channels appear in want.
func (e Event) Intersects(want map[string]struct{}) bool {
	for _, c := range e.Channels {
		if _, ok := want[c]; ok {
			return true
		}
	}
	return false
}
