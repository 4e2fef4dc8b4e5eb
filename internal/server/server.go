// Package server is a small Socket.IO bot used for local development and
// end-to-end tests of the chat client. It speaks the websocket transport only.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/omochice/socketio-chat/pkg/protocol"
)

const (
	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 20 * time.Second
	DefaultChannel      = "message"

	InvalidNamespaceMessage = "Invalid namespace"

	writeWait  = 10 * time.Second
	maxPayload = 1_000_000
)

var ErrServerStopped = errors.New("server stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for simplicity
	},
}

// Options configures a Server.
type Options struct {
	Address      string
	PingInterval time.Duration
	PingTimeout  time.Duration
	// Channel is the event answered by the bot.
	Channel   string
	Responder Responder
}

// Server is a Socket.IO bot answering chat messages.
type Server struct {
	opts Options
	log  *slog.Logger
	hub  *Hub

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server. Zero options take their defaults.
func New(opts Options, log *slog.Logger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Responder == nil {
		opts.Responder = Echo
	}
	return &Server{
		opts: opts,
		log:  log,
		hub:  NewHub(),
		quit: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving protocol.DefaultPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.DefaultPath, s.handleSocket)
	return mux
}

// Start listens on the configured address and serves until Stop is called.
// It returns ErrServerStopped after a clean stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("Socket.IO server started", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-s.quit:
		return ErrServerStopped
	}
}

// Stop closes the listener and every client connection, then waits for
// the client handlers to return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		srv := s.server
		s.mu.Unlock()
		if srv != nil {
			_ = srv.Close()
		}

		s.hub.CloseAll()
		s.wg.Wait()
		s.log.Info("Socket.IO server stopped")
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("EIO") != protocol.Version {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}
	if query.Get("transport") != "websocket" {
		http.Error(w, "transport unknown", http.StatusBadRequest)
		return
	}

	if !s.track() {
		http.Error(w, ErrServerStopped.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", "error", err)
		return
	}

	client := newClient(uuid.NewString(), conn)
	s.hub.Register(client)
	select {
	case <-s.quit:
		client.Close()
	default:
	}

	s.handleClient(client)
}

// track registers a connection handler with the wait group unless the
// server is stopping.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
		s.wg.Add(1)
		return true
	}
}

// handleClient runs a single connection until it closes or misses its
// heartbeat.
func (s *Server) handleClient(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	log := s.log.With("sid", client.ID)
	defer func() {
		cancel()
		s.hub.Unregister(client)
		client.Close()
		log.Info("Client disconnected")
	}()

	log.Info("Client connected", "remote", client.conn.RemoteAddr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop(client, log)
	}()

	open, err := protocol.Open(protocol.Handshake{
		SID:          client.ID,
		PingInterval: int(s.opts.PingInterval.Milliseconds()),
		PingTimeout:  int(s.opts.PingTimeout.Milliseconds()),
		MaxPayload:   maxPayload,
	})
	if err != nil {
		log.Error("Failed to build handshake", "error", err)
		return
	}
	s.send(client, open)

	window := s.opts.PingInterval + s.opts.PingTimeout
	joined := make(map[string]bool)
	for {
		_ = client.conn.SetReadDeadline(time.Now().Add(window))
		messageType, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			log.Debug("Ignoring binary frame")
			continue
		}

		var p protocol.Packet
		if err := p.Decode(data); err != nil {
			log.Warn("Failed to decode packet", "error", err)
			continue
		}

		switch p.Type {
		case protocol.PacketPong:
		case protocol.PacketPing:
			s.send(client, protocol.Packet{Type: protocol.PacketPong, Data: p.Data})
		case protocol.PacketClose:
			return
		case protocol.PacketMessage:
			if done := s.handleMessage(ctx, client, joined, p, log); done {
				return
			}
		default:
			log.Debug("Ignoring packet", "type", p.Type)
		}
	}
}

// handleMessage handles a Socket.IO packet and reports whether the client
// left.
func (s *Server) handleMessage(ctx context.Context, client *Client, joined map[string]bool, p protocol.Packet, log *slog.Logger) bool {
	switch p.Socket {
	case protocol.SocketConnect:
		if p.Namespace != protocol.DefaultNamespace {
			log.Info("Rejected namespace", "namespace", p.Namespace)
			s.send(client, protocol.ConnectError(p.Namespace, InvalidNamespaceMessage))
			return false
		}
		joined[p.Namespace] = true
		s.send(client, protocol.Connect(p.Namespace, uuid.NewString()))
	case protocol.SocketDisconnect:
		delete(joined, p.Namespace)
		return len(joined) == 0
	case protocol.SocketEvent:
		if !joined[p.Namespace] {
			log.Debug("Event outside a joined namespace", "namespace", p.Namespace)
			return false
		}
		s.handleEvent(ctx, client, p, log)
	default:
		log.Debug("Ignoring packet", "type", p.Socket)
	}
	return false
}

func (s *Server) handleEvent(ctx context.Context, client *Client, p protocol.Packet, log *slog.Logger) {
	name, args, err := p.Event()
	if err != nil {
		log.Warn("Malformed event", "error", err)
		return
	}
	if name != s.opts.Channel {
		log.Debug("Ignoring event", "event", name)
		return
	}

	text := ""
	if len(args) > 0 {
		text = protocol.ArgText(args[0])
	}
	log.Debug("Message received", "length", len(text))

	reply, err := s.opts.Responder.Respond(ctx, text)
	if err != nil {
		log.Warn("Responder failed", "error", err)
		return
	}
	answer, err := protocol.Event(p.Namespace, s.opts.Channel, reply)
	if err != nil {
		log.Warn("Failed to build reply", "error", err)
		return
	}
	s.send(client, answer)
}

// writeLoop is the only writer of client.conn. It also drives the
// server-side heartbeat.
func (s *Server) writeLoop(client *Client, log *slog.Logger) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	ping, _ := (&protocol.Packet{Type: protocol.PacketPing}).Encode()
	write := func(data []byte) bool {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("Failed to write to client", "error", err)
			client.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-client.done:
			return
		case data := <-client.outgoing:
			if !write(data) {
				return
			}
		case <-ticker.C:
			if !write(ping) {
				return
			}
		}
	}
}

func (s *Server) send(client *Client, p protocol.Packet) {
	data, err := p.Encode()
	if err != nil {
		s.log.Warn("Failed to encode packet", "error", err)
		return
	}
	select {
	case client.outgoing <- data:
	case <-client.done:
	}
}
