// Package ws provides the client-side WebSocket transport.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/socketio-chat/internal/chat"
)

var _ chat.Conn = (*Conn)(nil)

// DefaultReadLimit bounds an inbound message until SetReadLimit is called.
const DefaultReadLimit = 1_000_000

var ErrReadLimit = errors.New("read limit exceeded")

// Conn adapts a gobwas/ws client connection to chat.Conn.
type Conn struct {
	conn      net.Conn
	reader    *wsutil.Reader
	readLimit atomic.Int64
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return newConn(conn, br), nil
}

// Dialer dials WebSocket connections. The zero value is ready to use.
type Dialer struct{}

// Dial opens a WebSocket connection to url as a chat.Conn.
func (Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	conn, err := Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// newConn wraps conn. br holds frames the server sent together with the
// handshake response and must be drained before conn.
func newConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn}
	c.readLimit.Store(DefaultReadLimit)

	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	return c
}

// Read implements chat.Conn.
// Control frames are answered in place; the payload of the next text or
// binary message is returned.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, c.readErr(ctx, err)
		}

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.reader); err != nil {
				return nil, err
			}
			continue
		}

		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := c.reader.Discard(); err != nil {
				return nil, c.readErr(ctx, err)
			}
			continue
		}

		limit := c.readLimit.Load()
		data, err := io.ReadAll(io.LimitReader(c.reader, limit+1))
		if err != nil {
			return nil, c.readErr(ctx, err)
		}
		if int64(len(data)) > limit {
			// The rest of the message is never read, the stream is unusable.
			_ = c.Close()
			return nil, fmt.Errorf("%w: message larger than %d bytes", ErrReadLimit, limit)
		}
		return data, nil
	}
}

// SetReadLimit sets the largest message Read accepts. A larger message
// closes the connection. Values below one are ignored.
func (c *Conn) SetReadLimit(limit int64) {
	if limit > 0 {
		c.readLimit.Store(limit)
	}
}

// Write implements chat.Conn.
// Writes a text message; concurrent writers are serialized.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientText(c.conn, data)
}

// Close implements chat.Conn.
// Sends a normal closure frame on a best-effort basis, then closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		// A writer stuck on a dead peer must not block teardown.
		if c.wmu.TryLock() {
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
			c.wmu.Unlock()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.ControlFrameHandler(c.conn, ws.StateClientSide)(hdr, r)
}

func (c *Conn) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// The socket deadline may fire just before the context timer does.
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return err
}
