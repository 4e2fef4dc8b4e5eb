// Package client implements the Socket.IO connection manager: one
// connection to one endpoint, a single-shot send and a stream of events.
package client

import "context"

// Client defines the connection contract used by a chat session.
// Socket is the Socket.IO implementation.
type Client interface {
	Open(ctx context.Context)
	Events() <-chan Event
	Connected() bool
	Emit(ctx context.Context, event, text string) error
	Close() error
}

// EventKind identifies an inbound connection event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventMessage
	EventDisconnected
	EventError
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "CONNECTED"
	case EventMessage:
		return "MESSAGE"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered on Client.Events. Text is set for EventMessage,
// Err for EventError and, when known, EventDisconnected.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// State is the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}
