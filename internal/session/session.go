// Package session implements the chat screen: it owns the conversation and
// the connection handle for the lifetime of one view and is the only writer
// of the conversation.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/socketio-chat/internal/chat"
	"github.com/omochice/socketio-chat/internal/client"
)

const (
	NotConnectedNotice    = "⚠️ Not connected to server"
	ConnectionErrorNotice = "⚠️ Connection error. Please try again."

	DefaultChannel     = "message"
	defaultSendTimeout = 5 * time.Second
)

//go:generate mockgen -source=session.go -destination=mocks/mock_renderer.go -package=mocks

// Renderer displays the conversation. Its methods are called from the
// session loop only, one at a time.
type Renderer interface {
	EntryAppended(entry chat.Entry)
	ThinkingChanged(thinking bool)
}

// Options configures a Session.
type Options struct {
	// Channel is the event carrying chat text.
	Channel string
	// ReplyDelay holds every remote reply back before it is appended.
	// Zero appends replies as they arrive.
	ReplyDelay time.Duration
	// SendTimeout bounds a single outbound write.
	SendTimeout time.Duration
}

type sendRequest struct {
	text   string
	result chan bool
}

// Session is one chat view: a conversation, its connection and the pacing
// of remote replies.
type Session struct {
	conn   client.Client
	conv   *chat.Conversation
	render Renderer
	log    *slog.Logger
	opts   Options

	sends    chan sendRequest
	done     chan struct{}
	stopped  chan struct{}
	thinking atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a session over conn. The session takes ownership of conn and
// closes it in Close.
func New(conn client.Client, render Renderer, log *slog.Logger, opts Options) *Session {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Session{
		conn:    conn,
		conv:    chat.NewConversation(),
		render:  render,
		log:     log,
		opts:    opts,
		sends:   make(chan sendRequest),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start opens the connection and starts the session loop.
// It does nothing after the first call or after Close.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}
	s.started = true

	s.conn.Open(ctx)
	go s.loop(ctx)
}

// Send submits text typed by the user. It reports whether an entry was
// added; whitespace-only text is ignored. Failures to reach the server are
// reported inside the conversation, never to the caller.
func (s *Session) Send(text string) bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}

	req := sendRequest{text: text, result: make(chan bool, 1)}
	select {
	case s.sends <- req:
	case <-s.stopped:
		return false
	}

	select {
	case ok := <-req.result:
		return ok
	case <-s.stopped:
		select {
		case ok := <-req.result:
			return ok
		default:
			return false
		}
	}
}

// Entries returns the conversation in order.
func (s *Session) Entries() []chat.Entry {
	return s.conv.Entries()
}

// Thinking reports whether a remote reply is being held back.
func (s *Session) Thinking() bool {
	return s.thinking.Load()
}

// Close ends the view: pending replies are cancelled, the conversation is
// sealed and the connection is closed. Nothing is appended once Close
// returns. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.done)
	if started {
		<-s.stopped
	}
	s.conv.Seal()
	if err := s.conn.Close(); err != nil {
		s.log.Warn("Failed to close connection", "error", err)
	}
	s.log.Info("Session closed", "entries", s.conv.Len())
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.stopped)

	p := newPacer(s.opts.ReplyDelay)
	defer func() {
		if dropped := p.stop(); dropped > 0 {
			s.log.Debug("Cancelled pending replies", "count", dropped)
		}
		s.setThinking(false)
	}()

	events := s.conn.Events()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case req := <-s.sends:
			req.result <- s.handleSend(ctx, req.text)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev, p)
		case <-p.C():
			for _, text := range p.pop(time.Now()) {
				s.append(text, false)
			}
			if p.pending() == 0 {
				s.setThinking(false)
			}
		}
	}
}

func (s *Session) handleSend(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !s.append(text, true) {
		return false
	}

	if !s.conn.Connected() {
		s.append(NotConnectedNotice, false)
		return true
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()
	if err := s.conn.Emit(sendCtx, s.opts.Channel, text); err != nil {
		s.log.Warn("Failed to send message", "error", err)
		s.append(NotConnectedNotice, false)
	}
	return true
}

func (s *Session) handleEvent(ev client.Event, p *pacer) {
	switch ev.Kind {
	case client.EventConnected:
		s.log.Info("Connected to chat server")
	case client.EventDisconnected:
		s.log.Info("Disconnected from chat server", "reason", ev.Err)
	case client.EventError:
		s.log.Warn("Connection error", "error", ev.Err)
		s.append(ConnectionErrorNotice, false)
	case client.EventMessage:
		if s.opts.ReplyDelay <= 0 {
			s.append(ev.Text, false)
			return
		}
		if p.push(ev.Text, time.Now()) {
			s.setThinking(true)
		}
	}
}

func (s *Session) append(text string, isUser bool) bool {
	entry, err := s.conv.Append(text, isUser)
	if err != nil {
		s.log.Debug("Entry dropped", "error", err)
		return false
	}
	s.render.EntryAppended(entry)
	return true
}

func (s *Session) setThinking(thinking bool) {
	if s.thinking.Swap(thinking) != thinking {
		s.render.ThinkingChanged(thinking)
	}
}
