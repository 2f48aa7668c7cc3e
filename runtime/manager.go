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

// Manager handles the lifecycle of every room: creation on first use,
// lookup by key or id, and destruction once idle.
type Manager struct {
	mu         sync.Mutex
	log        *slog.Logger
	rooms      map[domain.RoomKey]*Room
	byID       map[domain.RoomID]*Room
	supervisor contract.ISupervisor
	store      contract.EventStore
	presence   *PresenceTracker
	cfg        RoomConfig
}

func NewManager(log *slog.Logger, supervisor contract.ISupervisor, store contract.EventStore,
	presence *PresenceTracker, cfg RoomConfig) *Manager {
	return &Manager{
		log:        log,
		rooms:      make(map[domain.RoomKey]*Room),
		byID:       make(map[domain.RoomID]*Room),
		supervisor: supervisor,
		store:      store,
		presence:   presence,
		cfg:        cfg,
	}
}

// GetOrCreateRoom returns the live room for the key, creating a new
// incarnation when none exists or the previous one was destroyed.
func (m *Manager) GetOrCreateRoom(ctx context.Context, key domain.RoomKey, kind domain.RoomKind) (*Room, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownRoomKind, kind)
	}
	if key.Kind != kind {
		return nil, fmt.Errorf("%w: key %s does not match kind %s", errors.ErrValidation, key, kind)
	}

	m.mu.Lock()
	if room, ok := m.rooms[key]; ok && !room.Closed() {
		m.mu.Unlock()
		return room, nil
	}
	if previous, ok := m.rooms[key]; ok {
		delete(m.byID, previous.ID)
	}
	room := newRoom(key, m.store, m.presence, m.cfg, m.log)
	m.rooms[key] = room
	m.byID[room.ID] = room
	m.supervisor.Spawn(room.persister)
	m.supervisor.Spawn(room)
	m.mu.Unlock()

	m.log.Info("Room created", "key", key, "room_id", room.ID)
	incarnation := domain.RoomIncarnation{Key: key, RoomID: room.ID, CreatedAt: room.CreatedAt}
	if err := m.store.RecordIncarnation(ctx, incarnation); err != nil {
		m.log.Warn("Room incarnation not recorded", "room_id", room.ID, "error", err)
	}
	return room, nil
}

// Lookup returns the live room for the key.
func (m *Manager) Lookup(key domain.RoomKey) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[key]
	if !ok || room.Closed() {
		return nil, false
	}
	return room, true
}

func (m *Manager) LookupID(id domain.RoomID) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.byID[id]
	if !ok || room.Closed() {
		return nil, false
	}
	return room, true
}

// Sweep destroys the rooms idle for longer than the idle timeout and returns
// how many were destroyed. The decision is taken by each room loop, so a join
// racing with the sweep either keeps the room alive or lands on a new one.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	destroyed := 0
	for _, room := range m.snapshot() {
		if !room.retire(ctx, now) {
			continue
		}
		m.mu.Lock()
		if m.rooms[room.Key] == room {
			delete(m.rooms, room.Key)
		}
		delete(m.byID, room.ID)
		m.mu.Unlock()
		m.presence.Forget(room.ID)
		destroyed++
	}
	if destroyed > 0 {
		m.log.Debug("Idle rooms swept", "destroyed", destroyed)
	}
	return destroyed
}

func (m *Manager) RoomStats() []contract.RoomStats {
	return lo.Map(m.snapshot(), func(room *Room, _ int) contract.RoomStats { return room.Stats() })
}

func (m *Manager) snapshot() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Values(m.rooms)
}
