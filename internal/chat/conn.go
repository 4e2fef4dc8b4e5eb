// Package chat provides the core chat domain shared by the client and the
// transports: the conversation state and the connection abstraction.
package chat

import "context"

// Conn abstracts a bidirectional, message-framed connection.
// This interface isolates transport details from the Socket.IO client.
type Conn interface {
	// Read reads a single message frame.
	// Returns an error once the connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
