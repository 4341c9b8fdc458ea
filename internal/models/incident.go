package models

import "time"

// ConditionType identifies which monitored condition an incident belongs to.
// The set is closed; ordering of the constants is the ordering used when a
// dying process closes several incidents at once.
type ConditionType int

const (
	ConditionCPUBurn ConditionType = iota
	ConditionRSSGrowth
)

// String returns the short identifier used in logs and event payloads.
func (c ConditionType) String() string {
	switch c {
	case ConditionCPUBurn:
		return "cpu_burn"
	case ConditionRSSGrowth:
		return "rss_growth"
	default:
		return "unknown"
	}
}

// IncidentState tracks the lifecycle of an incident.
type IncidentState int

const (
	IncidentOpen IncidentState = iota
	IncidentClosed
)

// NotificationHandle links an incident to its live desktop notification.
// MessageID 0 means no notification has been sent yet. Suppressed means the
// bus has indicated no further updates should be attempted for this
// incident, either because the server cannot update in place or because the
// user dismissed the message; client code never needs to distinguish the two.
type NotificationHandle struct {
	MessageID  uint32
	Suppressed bool
}

// Incident is one logical alert: a single process breaching a single
// condition continuously from open to close. Owned exclusively by the
// incident tracker; other components only hold it for the duration of one
// dispatch call.
type Incident struct {
	Proc      ProcessSnapshot
	Condition ConditionType
	OpenedAt  time.Time
	Duration  time.Duration
	// Value is the metric reading that most recently triggered the
	// incident: CPU percent for cpu_burn, RSS bytes for rss_growth.
	Value  float64
	State  IncidentState
	Handle NotificationHandle
}

// IncidentEventKind discriminates tracker output events.
type IncidentEventKind int

const (
	IncidentOpened IncidentEventKind = iota
	IncidentUpdated
	IncidentClosedEvent
)

func (k IncidentEventKind) String() string {
	switch k {
	case IncidentOpened:
		return "opened"
	case IncidentUpdated:
		return "updated"
	case IncidentClosedEvent:
		return "closed"
	default:
		return "unknown"
	}
}

// IncidentEvent is emitted by the tracker whenever an incident changes
// state. Metrics are the readings from the tick that caused the transition.
type IncidentEvent struct {
	Kind     IncidentEventKind
	Incident *Incident
	Metrics  ProcessMetrics
}
