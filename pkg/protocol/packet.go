// Package protocol implements the Engine.IO v4 / Socket.IO v5 text packet
// format spoken over the WebSocket transport.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultNamespace is the Socket.IO namespace used when none is given.
const DefaultNamespace = "/"

var (
	ErrMalformedPacket   = errors.New("malformed packet")
	ErrBinaryUnsupported = errors.New("binary packets are not supported")
)

// PacketType is the Engine.IO packet type.
type PacketType int

const (
	PacketOpen PacketType = iota
	PacketClose
	PacketPing
	PacketPong
	PacketMessage
	PacketUpgrade
	PacketNoop
)

// String returns the string representation of PacketType
func (t PacketType) String() string {
	switch t {
	case PacketOpen:
		return "OPEN"
	case PacketClose:
		return "CLOSE"
	case PacketPing:
		return "PING"
	case PacketPong:
		return "PONG"
	case PacketMessage:
		return "MESSAGE"
	case PacketUpgrade:
		return "UPGRADE"
	case PacketNoop:
		return "NOOP"
	default:
		return "UNKNOWN"
	}
}

// SocketType is the Socket.IO packet type carried by an Engine.IO MESSAGE.
type SocketType int

const (
	SocketConnect SocketType = iota
	SocketDisconnect
	SocketEvent
	SocketAck
	SocketConnectError
	SocketBinaryEvent
	SocketBinaryAck
)

// String returns the string representation of SocketType
func (t SocketType) String() string {
	switch t {
	case SocketConnect:
		return "CONNECT"
	case SocketDisconnect:
		return "DISCONNECT"
	case SocketEvent:
		return "EVENT"
	case SocketAck:
		return "ACK"
	case SocketConnectError:
		return "CONNECT_ERROR"
	case SocketBinaryEvent:
		return "BINARY_EVENT"
	case SocketBinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN"
	}
}

func (t SocketType) binary() bool {
	return t == SocketBinaryEvent || t == SocketBinaryAck
}

// Packet is a single Engine.IO packet. Socket, Namespace and AckID are only
// meaningful when Type is PacketMessage; Data then holds the JSON payload.
// For every other type Data is the raw packet payload (e.g. a ping probe).
type Packet struct {
	Type      PacketType
	Socket    SocketType
	Namespace string
	AckID     *int
	Data      []byte
}

// Encode encodes the packet into its text representation.
func (p *Packet) Encode() ([]byte, error) {
	if p.Type < PacketOpen || p.Type > PacketNoop {
		return nil, fmt.Errorf("%w: unknown packet type %d", ErrMalformedPacket, p.Type)
	}

	buf := []byte{byte('0' + p.Type)}
	if p.Type != PacketMessage {
		return append(buf, p.Data...), nil
	}

	if p.Socket < SocketConnect || p.Socket > SocketBinaryAck {
		return nil, fmt.Errorf("%w: unknown socket packet type %d", ErrMalformedPacket, p.Socket)
	}
	if p.Socket.binary() {
		return nil, ErrBinaryUnsupported
	}
	buf = append(buf, byte('0'+p.Socket))

	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		buf = append(buf, p.Namespace...)
		buf = append(buf, ',')
	}
	if p.AckID != nil {
		buf = strconv.AppendInt(buf, int64(*p.AckID), 10)
	}
	return append(buf, p.Data...), nil
}

// Decode decodes the text representation of a packet.
func (p *Packet) Decode(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty packet", ErrMalformedPacket)
	}

	t := PacketType(data[0] - '0')
	if data[0] < '0' || t > PacketNoop {
		return fmt.Errorf("%w: unknown packet type %q", ErrMalformedPacket, data[0])
	}
	*p = Packet{Type: t}

	if t != PacketMessage {
		p.Data = clone(data[1:])
		return nil
	}

	if len(data) < 2 {
		return fmt.Errorf("%w: missing socket packet type", ErrMalformedPacket)
	}
	s := SocketType(data[1] - '0')
	if data[1] < '0' || s > SocketBinaryAck {
		return fmt.Errorf("%w: unknown socket packet type %q", ErrMalformedPacket, data[1])
	}
	if s.binary() {
		return ErrBinaryUnsupported
	}
	p.Socket = s

	rest := data[2:]
	p.Namespace = DefaultNamespace
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return fmt.Errorf("%w: invalid ack id: %v", ErrMalformedPacket, err)
		}
		p.AckID = &id
		rest = rest[digits:]
	}

	if len(rest) > 0 && !json.Valid(rest) {
		return fmt.Errorf("%w: invalid JSON payload", ErrMalformedPacket)
	}
	p.Data = clone(rest)
	return nil
}

// Handshake is the payload of the Engine.IO OPEN packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// HeartbeatWindow is how long a peer may stay silent before the
// connection is considered dead.
func (h Handshake) HeartbeatWindow() time.Duration {
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// Open builds the OPEN packet a server sends first.
func Open(h Handshake) (Packet, error) {
	if h.Upgrades == nil {
		h.Upgrades = []string{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode handshake: %w", err)
	}
	return Packet{Type: PacketOpen, Data: data}, nil
}

// Handshake parses the payload of an OPEN packet.
func (p *Packet) Handshake() (Handshake, error) {
	var h Handshake
	if p.Type != PacketOpen {
		return h, fmt.Errorf("%w: expected OPEN, got %s", ErrMalformedPacket, p.Type)
	}
	if err := json.Unmarshal(p.Data, &h); err != nil {
		return h, fmt.Errorf("%w: invalid handshake: %v", ErrMalformedPacket, err)
	}
	if h.SID == "" {
		return h, fmt.Errorf("%w: handshake without sid", ErrMalformedPacket)
	}
	return h, nil
}

// Connect builds a CONNECT packet. The client sends it without sid;
// the server answers with the socket id.
func Connect(namespace, sid string) Packet {
	p := Packet{Type: PacketMessage, Socket: SocketConnect, Namespace: namespace}
	if sid != "" {
		p.Data, _ = json.Marshal(struct {
			SID string `json:"sid"`
		}{SID: sid})
	}
	return p
}

// SID returns the socket id carried by a server CONNECT packet.
func (p *Packet) SID() (string, error) {
	var payload struct {
		SID string `json:"sid"`
	}
	if len(p.Data) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(p.Data, &payload); err != nil {
		return "", fmt.Errorf("%w: invalid connect payload: %v", ErrMalformedPacket, err)
	}
	return payload.SID, nil
}

// Disconnect builds a DISCONNECT packet for namespace.
func Disconnect(namespace string) Packet {
	return Packet{Type: PacketMessage, Socket: SocketDisconnect, Namespace: namespace}
}

// ConnectError builds a CONNECT_ERROR packet.
func ConnectError(namespace, message string) Packet {
	data, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: message})
	return Packet{Type: PacketMessage, Socket: SocketConnectError, Namespace: namespace, Data: data}
}

// ErrorMessage returns the reason carried by a CONNECT_ERROR packet.
// Servers send either an object with a message field or a bare string.
func (p *Packet) ErrorMessage() string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return ArgText(p.Data)
}

// Event builds an EVENT packet emitting name with args.
func Event(namespace, name string, args ...any) (Packet, error) {
	if name == "" {
		return Packet{}, fmt.Errorf("%w: empty event name", ErrMalformedPacket)
	}
	data, err := json.Marshal(append([]any{name}, args...))
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode event %q: %w", name, err)
	}
	return Packet{Type: PacketMessage, Socket: SocketEvent, Namespace: namespace, Data: data}, nil
}

// Event returns the name and the raw arguments of an EVENT packet.
func (p *Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketMessage || p.Socket != SocketEvent {
		return "", nil, fmt.Errorf("%w: not an event packet", ErrMalformedPacket)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(p.Data, &items); err != nil || len(items) == 0 {
		return "", nil, fmt.Errorf("%w: event payload must be a non-empty array", ErrMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name must be a string", ErrMalformedPacket)
	}
	return name, items[1:], nil
}

// ArgText renders an event argument as text: strings are unquoted, any
// other JSON value is returned verbatim.
func ArgText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
