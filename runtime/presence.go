package runtime

import (
	"live-hub/domain"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// PresenceTracker counts live connections per user and per room.
// A user opening several tabs is announced once, on the first join,
// and leaves once, when the last of its connections is gone.
type PresenceTracker struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]map[domain.UserID]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{rooms: make(map[domain.RoomID]map[domain.UserID]int)}
}

// Joined increments the user count. The payload is returned with true only on a 0 -> 1 transition.
func (p *PresenceTracker) Joined(roomID domain.RoomID, userID domain.UserID) (domain.PresencePayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[roomID]
	if !ok {
		users = make(map[domain.UserID]int)
		p.rooms[roomID] = users
	}
	users[userID]++
	if users[userID] != 1 {
		return domain.PresencePayload{}, false
	}
	return domain.PresencePayload{
		UserID:       userID,
		Action:       domain.PresenceJoined,
		Participants: sortedUsers(users),
	}, true
}

// Left decrements the user count. The payload is returned with true only on a 1 -> 0 transition.
func (p *PresenceTracker) Left(roomID domain.RoomID, userID domain.UserID) (domain.PresencePayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[roomID]
	if !ok || users[userID] == 0 {
		return domain.PresencePayload{}, false
	}
	users[userID]--
	if users[userID] > 0 {
		return domain.PresencePayload{}, false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(p.rooms, roomID)
	}
	return domain.PresencePayload{
		UserID:       userID,
		Action:       domain.PresenceLeft,
		Participants: sortedUsers(users),
	}, true
}

// Participants returns the distinct users currently present in the room.
func (p *PresenceTracker) Participants(roomID domain.RoomID) []domain.UserID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedUsers(p.rooms[roomID])
}

func (p *PresenceTracker) Count(roomID domain.RoomID, userID domain.UserID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[roomID][userID]
}

// Forget drops whatever is left for a destroyed room.
func (p *PresenceTracker) Forget(roomID domain.RoomID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, roomID)
}

func sortedUsers(users map[domain.UserID]int) []domain.UserID {
	participants := lo.Keys(users)
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	return participants
}
