package runtime

import (
	"live-hub/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceTracker_Announces_Only_First_And_Last_Connection(t *testing.T) {
	req := require.New(t)
	tracker := NewPresenceTracker()
	room := domain.RoomID("course1-chat#1")

	// Given alice opens two tabs
	payload, changed := tracker.Joined(room, "alice")
	req.True(changed)
	req.Equal(domain.PresencePayload{UserID: "alice", Action: domain.PresenceJoined, Participants: []domain.UserID{"alice"}}, payload)

	_, changed = tracker.Joined(room, "alice")
	req.False(changed)
	req.Equal(2, tracker.Count(room, "alice"))

	// And bob joins
	payload, changed = tracker.Joined(room, "bob")
	req.True(changed)
	req.Equal([]domain.UserID{"alice", "bob"}, payload.Participants)

	// When alice closes one tab, nothing is announced
	_, changed = tracker.Left(room, "alice")
	req.False(changed)

	// When alice closes the last tab, alice leaves
	payload, changed = tracker.Left(room, "alice")
	req.True(changed)
	req.Equal(domain.PresenceLeft, payload.Action)
	req.Equal([]domain.UserID{"bob"}, payload.Participants)
	req.Equal([]domain.UserID{"bob"}, tracker.Participants(room))
}

func TestPresenceTracker_Left_Without_Join_Is_Ignored(t *testing.T) {
	req := require.New(t)
	tracker := NewPresenceTracker()
	room := domain.RoomID("course1-chat#1")

	_, changed := tracker.Left(room, "ghost")
	req.False(changed)
	req.Empty(tracker.Participants(room))
}

func TestPresenceTracker_Forget(t *testing.T) {
	req := require.New(t)
	tracker := NewPresenceTracker()
	room := domain.RoomID("course1-chat#1")

	tracker.Joined(room, "alice")
	tracker.Forget(room)

	req.Empty(tracker.Participants(room))
	_, changed := tracker.Joined(room, "alice")
	req.True(changed)
}
