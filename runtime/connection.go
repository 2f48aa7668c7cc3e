package runtime

import (
	"context"
	"fmt"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Connection is one live client session bound to a single room.
// Events reach the transport through a bounded outbox drained by a dedicated
// writer goroutine, so a slow client never blocks its room.
type Connection struct {
	ID          domain.ConnectionID
	UserID      domain.UserID
	RoomKey     domain.RoomKey
	RoomID      domain.RoomID
	ConnectedAt time.Time

	room         *Room
	transport    contract.Transport
	state        atomic.Int32
	outbox       chan domain.Event
	streaming    chan struct{}
	done         chan struct{}
	streamOnce   sync.Once
	closeOnce    sync.Once
	failOnce     sync.Once
	writeTimeout time.Duration
	onFailure    func(domain.ConnectionID)
	log          *slog.Logger
}

func newConnection(transport contract.Transport, room *Room, userID domain.UserID,
	outboxSize int, writeTimeout time.Duration, log *slog.Logger) *Connection {
	c := &Connection{
		ID:           domain.NewConnectionID(),
		UserID:       userID,
		RoomKey:      room.Key,
		RoomID:       room.ID,
		ConnectedAt:  time.Now().UTC(),
		room:         room,
		transport:    transport,
		outbox:       make(chan domain.Event, outboxSize),
		streaming:    make(chan struct{}),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	c.log = log.With("conn_id", c.ID, "user_id", userID, "room_id", room.ID)
	c.state.Store(int32(domain.StateConnecting))
	return c
}

func (c *Connection) State() domain.ConnState {
	return domain.ConnState(c.state.Load())
}

// transition applies a state change allowed by the connection state machine.
func (c *Connection) transition(to domain.ConnState) bool {
	for {
		from := c.State()
		if !domain.CanTransition(from, to) {
			return false
		}
		if c.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

// offer queues the event without blocking. False means the outbox is full or
// the connection is already closed.
func (c *Connection) offer(evt domain.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- evt:
		return true
	default:
		return false
	}
}

// Notify queues an out-of-band event. A connection unable to take it is failed.
func (c *Connection) Notify(evt domain.Event) bool {
	if c.offer(evt) {
		return true
	}
	c.fail(fmt.Errorf("%w: outbox full", errors.ErrConnectionLost))
	return false
}

// SendDirect writes straight to the transport. It is only meant for the join
// backfill, while the writer goroutine still waits for StartStreaming.
func (c *Connection) SendDirect(ctx context.Context, evt domain.Event) error {
	return c.write(ctx, evt)
}

// StartStreaming releases the writer goroutine on the outbox.
func (c *Connection) StartStreaming() {
	c.streamOnce.Do(func() { close(c.streaming) })
}

func (c *Connection) writeLoop() {
	select {
	case <-c.done:
		return
	case <-c.streaming:
	}
	for {
		select {
		case <-c.done:
			return
		case evt := <-c.outbox:
			if err := c.write(context.Background(), evt); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// write bounds every transport write with the write timeout. A transport that
// ignores its context is abandoned and closed by the failure path.
func (c *Connection) write(ctx context.Context, evt domain.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- c.transport.Send(writeCtx, evt) }()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrConnectionLost, err)
		}
		return nil
	case <-writeCtx.Done():
		return fmt.Errorf("%w: write timed out after %s", errors.ErrConnectionLost, c.writeTimeout)
	case <-c.done:
		return fmt.Errorf("%w: connection closed", errors.ErrConnectionLost)
	}
}

// fail moves the connection to Error, closes it and asks for its removal.
func (c *Connection) fail(err error) {
	c.failOnce.Do(func() {
		if c.transition(domain.StateError) {
			c.log.Warn("Connection failed", "error", err)
		}
		c.close()
		if c.onFailure != nil {
			go c.onFailure(c.ID)
		}
	})
}

// abandon stops the writer of a connection that never joined, leaving the transport open.
func (c *Connection) abandon() {
	c.transition(domain.StateDisconnected)
	c.closeOnce.Do(func() { close(c.done) })
	c.transition(domain.StateRemoved)
}

// close is idempotent.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.transport.Close(); err != nil {
			c.log.Debug("Transport close failed", "error", err)
		}
	})
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}
