package notifier

import (
	"context"
)

// Capabilities reports what the notification server can do, queried once per
// connection and cached.
type Capabilities struct {
	// Persistence means the server supports updating a message in place via
	// its replace id.
	Persistence bool
	// Actions means the server renders user-clickable action buttons.
	Actions bool
}

// Action is one button attached to a notification.
type Action struct {
	Key   string
	Label string
}

// Request describes a single create-or-update notification call.
type Request struct {
	AppName string
	Summary string
	Body    string
	Icon    string
	// ReplaceID 0 always creates a new message. Non-zero asks the server to
	// update message ReplaceID in place; the client refuses (Suppressed)
	// when the server cannot update or the message is no longer live.
	ReplaceID uint32
	// Actions are only attached when the server advertises the capability;
	// requesting them against a non-supporting server is a no-op.
	Actions []Action
	// TimeoutMillis is the server-enforced display duration, 0 for sticky.
	TimeoutMillis int32
	// Context is an opaque caller value routed back on Events for this
	// message id.
	Context interface{}
}

// Result is the outcome of a Notify call. Suppressed means the call was
// refused client-side with no bus traffic; the caller must stop updating
// that message.
type Result struct {
	MessageID  uint32
	Suppressed bool
}

// EventKind discriminates asynchronous server events.
type EventKind int

const (
	// EventDismissed means the user (or the server) closed the message.
	EventDismissed EventKind = iota
	// EventActionInvoked means the user clicked an action button.
	EventActionInvoked
)

// Event is an asynchronous server signal routed back to the caller together
// with the opaque context supplied on the originating Request.
type Event struct {
	Kind      EventKind
	MessageID uint32
	ActionKey string
	Context   interface{}
}

// Client abstracts the desktop notification bus.
type Client interface {
	// Connect establishes the bus connection and caches server capabilities.
	Connect(ctx context.Context) (Capabilities, error)
	// Notify creates or updates a notification. A transport failure is
	// returned as an error and affects that call only.
	Notify(ctx context.Context, req Request) (Result, error)
	// Events delivers dismissal and action-invoked signals. The channel is
	// bounded; it is closed by Close.
	Events() <-chan Event
	Close() error
}
