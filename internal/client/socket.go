package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/socketio-chat/internal/chat"
	"github.com/omochice/socketio-chat/pkg/protocol"
)

var (
	ErrNotConnected     = errors.New("not connected to server")
	ErrConnectRefused   = errors.New("connection refused by server")
	ErrServerDisconnect = errors.New("server disconnected")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// disconnectTimeout bounds the farewell DISCONNECT written by Close.
const disconnectTimeout = time.Second

// Dialer opens the underlying message-framed connection.
type Dialer interface {
	Dial(ctx context.Context, url string) (chat.Conn, error)
}

// readLimiter is implemented by connections that can bound inbound messages.
type readLimiter interface {
	SetReadLimit(limit int64)
}

// Options configures a Socket.
type Options struct {
	// URL is the server base address, e.g. http://localhost:8888.
	URL string
	// Namespace defaults to "/".
	Namespace string
	// Channel is the event name carrying chat text.
	Channel string
	// EventBuffer is the capacity of the events channel.
	EventBuffer int
}

// Socket is a Socket.IO client bound to a single connection attempt.
// Once disconnected it stays disconnected.
type Socket struct {
	opts   Options
	dialer Dialer
	log    *slog.Logger

	state  atomic.Int32
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	conn   chat.Conn
	cancel context.CancelFunc
	opened bool
	closed bool

	closeOnce sync.Once
}

var _ Client = (*Socket)(nil)

// New creates a Socket. Nothing is dialed until Open.
func New(opts Options, dialer Dialer, log *slog.Logger) *Socket {
	if opts.Namespace == "" {
		opts.Namespace = protocol.DefaultNamespace
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}
	return &Socket{
		opts:   opts,
		dialer: dialer,
		log:    log,
		events: make(chan Event, opts.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Open starts the single connection attempt in the background. Its outcome
// is reported on Events. Calls after the first, or after Close, do nothing.
func (s *Socket) Open(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened || s.closed {
		s.log.Warn("Socket already opened or closed, ignoring Open")
		return
	}
	s.opened = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)
}

// Events returns the inbound event stream. It is closed once the
// connection attempt is over and Close has been called, or when Close is
// called before Open.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Connected reports whether the Socket.IO handshake completed and the
// connection is still alive.
func (s *Socket) Connected() bool {
	return State(s.state.Load()) == StateConnected
}

// State returns the current connection state.
func (s *Socket) State() State {
	return State(s.state.Load())
}

// Emit sends text on the named event. Nothing is transmitted when the socket
// is not connected.
func (s *Socket) Emit(ctx context.Context, event, text string) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	packet, err := protocol.Event(s.opts.Namespace, event, text)
	if err != nil {
		return err
	}
	if err := s.write(ctx, conn, packet); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	s.log.Debug("Event emitted", "event", event, "length", len(text))
	return nil
}

// Close tears the connection down unconditionally. Pending sends are not
// flushed and no event is delivered afterwards. Close is idempotent.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		opened := s.opened
		cancel := s.cancel
		conn := s.conn
		s.mu.Unlock()

		wasConnected := s.Connected()
		s.state.Store(int32(StateDisconnected))
		close(s.done)

		if conn != nil && wasConnected {
			ctx, stop := context.WithTimeout(context.Background(), disconnectTimeout)
			if err := s.write(ctx, conn, protocol.Disconnect(s.opts.Namespace)); err != nil {
				s.log.Debug("Failed to send disconnect packet", "error", err)
			}
			stop()
		}
		if cancel != nil {
			cancel()
		}

		if opened {
			s.wg.Wait()
		} else {
			close(s.events)
		}
		s.log.Info("Socket closed")
	})
	return nil
}

func (s *Socket) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	url, err := protocol.EndpointURL(s.opts.URL)
	if err != nil {
		s.fail(err)
		return
	}

	s.log.Info("Connecting to Socket.IO server", "url", url)
	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		s.fail(err)
		return
	}
	s.setConn(conn)
	defer func() {
		s.state.Store(int32(StateDisconnected))
		_ = conn.Close()
	}()

	handshake, err := s.handshake(ctx, conn)
	if err != nil {
		s.fail(err)
		return
	}

	if l, ok := conn.(readLimiter); ok && handshake.MaxPayload > 0 {
		l.SetReadLimit(int64(handshake.MaxPayload))
	}

	s.state.Store(int32(StateConnected))
	s.log.Info("Connected to Socket.IO server",
		"remote", conn.RemoteAddr(), "sid", handshake.SID, "namespace", s.opts.Namespace)
	s.emit(Event{Kind: EventConnected})

	err = s.readLoop(ctx, conn, handshake)
	s.state.Store(int32(StateDisconnected))
	if ctx.Err() != nil {
		return
	}
	s.log.Info("Disconnected from Socket.IO server", "reason", err)
	s.emit(Event{Kind: EventDisconnected, Err: err})
}

// handshake reads the Engine.IO OPEN packet and joins the namespace.
func (s *Socket) handshake(ctx context.Context, conn chat.Conn) (protocol.Handshake, error) {
	open, err := s.readPacket(ctx, conn)
	if err != nil {
		return protocol.Handshake{}, err
	}
	handshake, err := open.Handshake()
	if err != nil {
		return protocol.Handshake{}, err
	}

	if err := s.write(ctx, conn, protocol.Connect(s.opts.Namespace, "")); err != nil {
		return protocol.Handshake{}, fmt.Errorf("failed to join namespace: %w", err)
	}

	for {
		p, err := s.readPacket(ctx, conn)
		if err != nil {
			return protocol.Handshake{}, err
		}

		switch {
		case p.Type == protocol.PacketPing:
			if err := s.write(ctx, conn, protocol.Packet{Type: protocol.PacketPong, Data: p.Data}); err != nil {
				return protocol.Handshake{}, err
			}
		case p.Type == protocol.PacketClose:
			return protocol.Handshake{}, ErrServerDisconnect
		case p.Type != protocol.PacketMessage || p.Namespace != s.opts.Namespace:
			s.log.Debug("Ignoring packet during handshake", "type", p.Type)
		case p.Socket == protocol.SocketConnect:
			if sid, err := p.SID(); err == nil && sid != "" {
				handshake.SID = sid
			}
			return handshake, nil
		case p.Socket == protocol.SocketConnectError:
			return protocol.Handshake{}, fmt.Errorf("%w: %s", ErrConnectRefused, p.ErrorMessage())
		default:
			s.log.Debug("Ignoring packet during handshake", "type", p.Socket)
		}
	}
}

func (s *Socket) readLoop(ctx context.Context, conn chat.Conn, handshake protocol.Handshake) error {
	window := handshake.HeartbeatWindow()

	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if window > 0 {
			readCtx, cancel = context.WithTimeout(ctx, window)
		}
		data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return ErrHeartbeatTimeout
			}
			return fmt.Errorf("read failed: %w", err)
		}

		var p protocol.Packet
		if err := p.Decode(data); err != nil {
			s.log.Warn("Dropping undecodable packet", "error", err)
			continue
		}

		switch p.Type {
		case protocol.PacketPing:
			if err := s.write(ctx, conn, protocol.Packet{Type: protocol.PacketPong, Data: p.Data}); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
		case protocol.PacketClose:
			return ErrServerDisconnect
		case protocol.PacketMessage:
			if done := s.handleMessage(p); done {
				return ErrServerDisconnect
			}
		default:
			s.log.Debug("Ignoring packet", "type", p.Type)
		}
	}
}

// handleMessage dispatches a Socket.IO packet and reports whether the server
// ended the session.
func (s *Socket) handleMessage(p protocol.Packet) bool {
	if p.Namespace != s.opts.Namespace {
		s.log.Debug("Ignoring packet for other namespace", "namespace", p.Namespace)
		return false
	}

	switch p.Socket {
	case protocol.SocketEvent:
		name, args, err := p.Event()
		if err != nil {
			s.log.Warn("Dropping malformed event", "error", err)
			return false
		}
		if name != s.opts.Channel {
			s.log.Debug("Ignoring event on other channel", "event", name)
			return false
		}
		text := ""
		if len(args) > 0 {
			text = protocol.ArgText(args[0])
		}
		s.emit(Event{Kind: EventMessage, Text: text})
	case protocol.SocketDisconnect:
		return true
	case protocol.SocketConnectError:
		s.log.Warn("Server reported an error", "message", p.ErrorMessage())
	default:
		s.log.Debug("Ignoring packet", "type", p.Socket)
	}
	return false
}

func (s *Socket) readPacket(ctx context.Context, conn chat.Conn) (protocol.Packet, error) {
	var p protocol.Packet
	data, err := conn.Read(ctx)
	if err != nil {
		return p, fmt.Errorf("read failed: %w", err)
	}
	if err := p.Decode(data); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Socket) write(ctx context.Context, conn chat.Conn, p protocol.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}

// fail reports a failed connection attempt, the connect_error of Socket.IO.
func (s *Socket) fail(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.log.Error("Connection error", "error", err)
	s.emit(Event{Kind: EventError, Err: err})
}

func (s *Socket) emit(ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Socket) setConn(conn chat.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Socket) currentConn() chat.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
