package gateway

import (
	"context"
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport serializes every write on one websocket. Gorilla allows a
// single concurrent writer, and both the room writer goroutine and the
// session (acks, errors, pings) write to the same socket.
type WSTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closed       atomic.Bool
}

func NewWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *WSTransport {
	return &WSTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *WSTransport) Send(ctx context.Context, evt domain.Event) error {
	return t.WriteFrame(ctx, toServerFrame(evt))
}

// WriteFrame writes one JSON frame, bounded by the ctx deadline or the write timeout.
func (t *WSTransport) WriteFrame(ctx context.Context, frame ServerFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.closed.Load() {
		return fmt.Errorf("%w: socket closed", errors.ErrConnectionLost)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(t.deadline(ctx)); err != nil {
		return err
	}
	return t.conn.WriteJSON(frame)
}

func (t *WSTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *WSTransport) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(t.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

// Close closes the socket once. It never waits for a write in flight, so the
// close frame is skipped in that case.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.mu.TryLock() {
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(t.writeTimeout))
			t.mu.Unlock()
		}
		err = t.conn.Close()
	})
	return err
}

// membership is the transport handed to the runtime for one room. A client
// leaving on its own detaches it first, so the runtime closing the membership
// keeps the socket open for the next join. Any other close tears the socket down.
type membership struct {
	socket   *WSTransport
	detached atomic.Bool
}

func (m *membership) Send(ctx context.Context, evt domain.Event) error {
	if m.detached.Load() {
		return fmt.Errorf("%w: membership detached", errors.ErrConnectionLost)
	}
	return m.socket.Send(ctx, evt)
}

func (m *membership) Close() error {
	if m.detached.Load() {
		return nil
	}
	return m.socket.Close()
}

func (m *membership) detach() {
	m.detached.Store(true)
}
