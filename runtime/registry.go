package runtime

import (
	"context"
	"fmt"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Registry tracks every live connection. Room membership itself lives in the
// room loops; the registry only knows which room each connection belongs to.
type Registry struct {
	mu           sync.RWMutex
	log          *slog.Logger
	manager      *Manager
	conns        map[domain.ConnectionID]*Connection
	outboxSize   int
	writeTimeout time.Duration
}

func NewRegistry(log *slog.Logger, manager *Manager, outboxSize int, writeTimeout time.Duration) *Registry {
	return &Registry{
		log:          log,
		manager:      manager,
		conns:        make(map[domain.ConnectionID]*Connection),
		outboxSize:   outboxSize,
		writeTimeout: writeTimeout,
	}
}

// Register binds the transport to the live room of the key and starts
// streaming right away.
func (r *Registry) Register(ctx context.Context, transport contract.Transport,
	key domain.RoomKey, userID domain.UserID) (domain.ConnectionID, error) {
	conn, _, err := r.registerPaused(ctx, transport, key, userID)
	if err != nil {
		return "", err
	}
	conn.StartStreaming()
	return conn.ID, nil
}

// registerPaused joins the room but keeps the writer on hold so that the
// caller can write a backfill first. Live events accumulate in the outbox.
func (r *Registry) registerPaused(ctx context.Context, transport contract.Transport,
	key domain.RoomKey, userID domain.UserID) (*Connection, joinPoint, error) {
	room, ok := r.manager.Lookup(key)
	if !ok {
		return nil, joinPoint{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, key)
	}

	conn := newConnection(transport, room, userID, r.outboxSize, r.writeTimeout, r.log)
	conn.onFailure = r.Unregister

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()
	go conn.writeLoop()

	point, err := room.join(ctx, conn)
	if err != nil {
		// The transport stays open so that the caller may retry on a new room
		r.mu.Lock()
		delete(r.conns, conn.ID)
		r.mu.Unlock()
		conn.abandon()
		return nil, joinPoint{}, err
	}
	r.log.Debug("Connection registered", "conn_id", conn.ID, "user_id", userID, "room_id", room.ID, "head", point.head)
	return conn, point, nil
}

// Unregister removes the connection from its room and closes it. The
// connection reaches Removed only after the room applied the leave and
// broadcast the presence change. Calling it again, or for an unknown id,
// does nothing.
func (r *Registry) Unregister(id domain.ConnectionID) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	conn.transition(domain.StateDisconnected)
	conn.close()

	if err := conn.room.leave(context.Background(), id); err != nil {
		r.log.Debug("Room gone before the leave", "conn_id", id, "room_id", conn.RoomID, "error", err)
	}
	conn.transition(domain.StateRemoved)
	r.log.Debug("Connection unregistered", "conn_id", id, "room_id", conn.RoomID)
}

// MembersOf lists the room connections in join order.
func (r *Registry) MembersOf(ctx context.Context, roomID domain.RoomID) ([]domain.ConnectionID, error) {
	room, ok := r.manager.LookupID(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	return room.memberIDs(ctx)
}

func (r *Registry) Connection(id domain.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll unregisters every connection, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	r.mu.RUnlock()
	for _, id := range ids {
		r.Unregister(id)
	}
}
