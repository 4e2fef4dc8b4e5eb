package protocol

import (
	"fmt"
	"net/url"
)

const (
	// Version is the Engine.IO protocol revision spoken by this package.
	Version = "4"

	// DefaultPath is where Socket.IO servers mount their endpoint.
	DefaultPath = "/socket.io/"
)

// EndpointURL turns a server base address such as http://host:port into the
// WebSocket URL of its Socket.IO endpoint. Only the websocket transport is
// ever requested.
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", base)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	q := u.Query()
	q.Set("EIO", Version)
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
