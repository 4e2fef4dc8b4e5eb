package session_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/socketio-chat/internal/chat"
	"github.com/omochice/socketio-chat/internal/client"
	"github.com/omochice/socketio-chat/internal/session"
	"github.com/omochice/socketio-chat/internal/session/mocks"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClient struct {
	events    chan client.Event
	connected atomic.Bool
	opened    atomic.Bool
	closed    atomic.Bool
	emitErr   error

	mu      sync.Mutex
	emitted []string
}

func newFakeClient(connected bool) *fakeClient {
	f := &fakeClient{events: make(chan client.Event, 16)}
	f.connected.Store(connected)
	return f
}

func (f *fakeClient) Open(ctx context.Context) { f.opened.Store(true) }

func (f *fakeClient) Events() <-chan client.Event { return f.events }

func (f *fakeClient) Connected() bool { return f.connected.Load() }

func (f *fakeClient) Emit(ctx context.Context, event, text string) error {
	if !f.connected.Load() {
		return client.ErrNotConnected
	}
	if f.emitErr != nil {
		return f.emitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, event+":"+text)
	return nil
}

func (f *fakeClient) Close() error {
	f.closed.Store(true)
	f.connected.Store(false)
	return nil
}

func (f *fakeClient) Emitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.emitted...)
}

var _ client.Client = (*fakeClient)(nil)

// recorder is a Renderer keeping everything it was shown.
type recorder struct {
	mu       sync.Mutex
	entries  []chat.Entry
	thinking []bool
}

func (r *recorder) EntryAppended(entry chat.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) ThinkingChanged(thinking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thinking = append(r.thinking, thinking)
}

func (r *recorder) Thinking() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.thinking...)
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type line struct {
	Text   string
	IsUser bool
}

func lines(entries []chat.Entry) []line {
	return lo.Map(entries, func(e chat.Entry, _ int) line {
		return line{Text: e.Text, IsUser: e.IsUser}
	})
}

func newSession(t *testing.T, conn client.Client, render session.Renderer, delay time.Duration) *session.Session {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := session.New(conn, render, log, session.Options{ReplyDelay: delay})
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func waitLen(t *testing.T, s *session.Session, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.Entries()) == n
	}, time.Second, 5*time.Millisecond)
}

func TestSession_Start_OpensConnection(t *testing.T) {
	conn := newFakeClient(false)
	newSession(t, conn, &recorder{}, 0)
	require.True(t, conn.opened.Load())
}

func TestSession_Send_Connected(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 0)

	require.True(t, s.Send("hi"))
	require.Equal(t, []line{{Text: "hi", IsUser: true}}, lines(s.Entries()))
	require.Equal(t, []string{"message:hi"}, conn.Emitted())

	conn.events <- client.Event{Kind: client.EventMessage, Text: "hello"}
	waitLen(t, s, 2)
	require.Equal(t, []line{
		{Text: "hi", IsUser: true},
		{Text: "hello", IsUser: false},
	}, lines(s.Entries()))
}

func TestSession_Send_KeepsOriginalText(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 0)

	require.True(t, s.Send("  padded  "))
	require.Equal(t, "  padded  ", s.Entries()[0].Text)
	require.Equal(t, []string{"message:  padded  "}, conn.Emitted())
}

func TestSession_Send_Disconnected(t *testing.T) {
	conn := newFakeClient(false)
	s := newSession(t, conn, &recorder{}, 0)

	require.True(t, s.Send("hi"))
	require.Equal(t, []line{
		{Text: "hi", IsUser: true},
		{Text: session.NotConnectedNotice, IsUser: false},
	}, lines(s.Entries()))
	require.Empty(t, conn.Emitted())
}

func TestSession_Send_Whitespace(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 0)

	for _, text := range []string{"", " ", "\t\n", "   "} {
		require.False(t, s.Send(text))
	}
	require.Empty(t, s.Entries())
	require.Empty(t, conn.Emitted())
}

func TestSession_Send_EmitFailure(t *testing.T) {
	conn := newFakeClient(true)
	conn.emitErr = errors.New("broken pipe")
	s := newSession(t, conn, &recorder{}, 0)

	require.True(t, s.Send("hi"))
	require.Equal(t, []line{
		{Text: "hi", IsUser: true},
		{Text: session.NotConnectedNotice, IsUser: false},
	}, lines(s.Entries()))
}

func TestSession_ConnectionError(t *testing.T) {
	conn := newFakeClient(false)
	s := newSession(t, conn, &recorder{}, 0)

	conn.events <- client.Event{Kind: client.EventError, Err: errors.New("dial tcp: refused")}

	waitLen(t, s, 1)
	require.Equal(t, []line{{Text: session.ConnectionErrorNotice, IsUser: false}}, lines(s.Entries()))
}

func TestSession_LifecycleEventsAddNoEntries(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 0)

	conn.events <- client.Event{Kind: client.EventConnected}
	conn.events <- client.Event{Kind: client.EventDisconnected}
	conn.events <- client.Event{Kind: client.EventMessage, Text: "marker"}

	waitLen(t, s, 1)
	require.Equal(t, "marker", s.Entries()[0].Text)
}

func TestSession_EmptyInboundTextIsKept(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 0)

	conn.events <- client.Event{Kind: client.EventMessage, Text: ""}

	waitLen(t, s, 1)
	require.Equal(t, []line{{Text: "", IsUser: false}}, lines(s.Entries()))
}

func TestSession_ReplyDelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	render := mocks.NewMockRenderer(ctrl)

	delivered := make(chan struct{})
	gomock.InOrder(
		render.EXPECT().ThinkingChanged(true),
		render.EXPECT().EntryAppended(gomock.Any()).Do(func(e chat.Entry) {
			assert.Equal(t, "hello", e.Text)
			assert.False(t, e.IsUser)
		}),
		render.EXPECT().ThinkingChanged(false).Do(func(bool) { close(delivered) }),
	)

	conn := newFakeClient(true)
	s := newSession(t, conn, render, 50*time.Millisecond)

	start := time.Now()
	conn.events <- client.Event{Kind: client.EventMessage, Text: "hello"}

	require.Eventually(t, s.Thinking, time.Second, time.Millisecond)
	require.Empty(t, s.Entries())

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("reply was not delivered")
	}
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.False(t, s.Thinking())
	require.Equal(t, []line{{Text: "hello", IsUser: false}}, lines(s.Entries()))
}

func TestSession_ReplyDelay_KeepsArrivalOrder(t *testing.T) {
	render := &recorder{}
	conn := newFakeClient(true)
	s := newSession(t, conn, render, 30*time.Millisecond)

	for _, text := range []string{"one", "two", "three"} {
		conn.events <- client.Event{Kind: client.EventMessage, Text: text}
		time.Sleep(5 * time.Millisecond)
	}

	waitLen(t, s, 3)
	require.Equal(t, []string{"one", "two", "three"}, lo.Map(s.Entries(), func(e chat.Entry, _ int) string {
		return e.Text
	}))
	require.Eventually(t, func() bool {
		return len(render.Thinking()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []bool{true, false}, render.Thinking())
}

func TestSession_UserEntryBeforeDelayedReply(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 20*time.Millisecond)

	require.True(t, s.Send("hi"))
	require.Len(t, s.Entries(), 1)

	conn.events <- client.Event{Kind: client.EventMessage, Text: "hello"}
	waitLen(t, s, 2)
	require.Equal(t, []line{
		{Text: "hi", IsUser: true},
		{Text: "hello", IsUser: false},
	}, lines(s.Entries()))
}

func TestSession_Close_CancelsPendingReplies(t *testing.T) {
	render := &recorder{}
	conn := newFakeClient(true)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := session.New(conn, render, log, session.Options{ReplyDelay: 50 * time.Millisecond})
	s.Start(context.Background())

	conn.events <- client.Event{Kind: client.EventMessage, Text: "late"}
	require.Eventually(t, s.Thinking, time.Second, time.Millisecond)

	s.Close()
	s.Close()

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, s.Entries())
	require.Zero(t, render.Count())
	require.False(t, s.Thinking())
	require.True(t, conn.closed.Load())
}

func TestSession_NoAppendAfterClose(t *testing.T) {
	conn := newFakeClient(true)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := session.New(conn, &recorder{}, log, session.Options{})
	s.Start(context.Background())

	require.True(t, s.Send("before"))
	s.Close()

	conn.events <- client.Event{Kind: client.EventMessage, Text: "after"}
	conn.events <- client.Event{Kind: client.EventError}
	require.False(t, s.Send("after"))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []line{{Text: "before", IsUser: true}}, lines(s.Entries()))
}

func TestSession_SendBeforeStart(t *testing.T) {
	conn := newFakeClient(true)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := session.New(conn, &recorder{}, log, session.Options{})
	defer s.Close()

	require.False(t, s.Send("hi"))
	require.Empty(t, s.Entries())
}

func TestSession_StartAfterClose(t *testing.T) {
	conn := newFakeClient(true)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := session.New(conn, &recorder{}, log, session.Options{})

	s.Close()
	s.Start(context.Background())

	require.False(t, conn.opened.Load())
	require.False(t, s.Send("hi"))
}

func TestSession_ContextCancelled(t *testing.T) {
	conn := newFakeClient(true)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := session.New(conn, &recorder{}, log, session.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer s.Close()

	cancel()
	require.Eventually(t, func() bool {
		return !s.Send("hi")
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, s.Entries())
}

// The conversation grows by one entry per operation, except whitespace-only
// sends which add nothing.
func TestSession_LengthMatchesOperations(t *testing.T) {
	conn := newFakeClient(true)
	s := newSession(t, conn, &recorder{}, 0)

	rng := rand.New(rand.NewSource(42))
	ops, blanks := 200, 0
	for i := 0; i < ops; i++ {
		switch rng.Intn(3) {
		case 0:
			s.Send("message")
		case 1:
			blanks++
			s.Send(lo.Sample([]string{"", " ", "\t", "\n  "}))
		case 2:
			conn.events <- client.Event{Kind: client.EventMessage, Text: "reply"}
		}
	}

	waitLen(t, s, ops-blanks)
	for _, e := range s.Entries() {
		if e.Text == "message" {
			require.True(t, e.IsUser)
		} else {
			require.False(t, e.IsUser)
		}
	}
}
