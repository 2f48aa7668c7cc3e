package runtime

import (
	"context"
	"live-hub/domain"
	"live-hub/errors"
	"live-hub/mocks"
	"live-hub/moderation"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOrchestrator_Publish_Delivers_In_Seq_Order_Without_Echo(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)

	// Given alice and bob in the same course chat
	alice, aliceTransport := join(t, orchestrator, key, "alice", Resume{})
	_, bobTransport := join(t, orchestrator, key, "bob", Resume{})
	aliceTransport.nextOf(t, domain.EventPresence) // alice joined
	aliceTransport.nextOf(t, domain.EventPresence) // bob joined

	// When alice sends three messages
	var seqs []uint64
	for _, text := range []string{"one", "two", "three"} {
		result := say(t, orchestrator, alice, text)
		req.False(result.Degraded)
		req.Empty(result.Failed)
		seqs = append(seqs, result.Seq)
	}

	// Then bob receives them in order with the assigned seqs
	for i, text := range []string{"one", "two", "three"} {
		evt := bobTransport.nextOf(t, domain.EventMessage)
		req.Equal(domain.MessagePayload{Text: text}, evt.Payload)
		req.Equal(seqs[i], evt.Seq)
		req.Equal(alice.ID, evt.Sender)
		req.Equal(domain.UserID("alice"), evt.SenderUser)
	}
	req.Less(seqs[0], seqs[1])
	req.Less(seqs[1], seqs[2])

	// And alice never gets echoed messages back
	aliceTransport.quiet(t, 100*time.Millisecond)
}

func TestOrchestrator_Publish_Echoes_To_Sender_When_Enabled(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	cfg.Policy.EchoToSender = true
	orchestrator := startOrchestrator(t, badgerStore(t), cfg)
	key := domain.NewRoomKey("group7", domain.KindWhiteboard)

	alice, aliceTransport := join(t, orchestrator, key, "alice", Resume{})
	stroke := domain.StrokePayload{Tool: "pen", Points: []domain.Point{{X: 1, Y: 1}}, Color: "#000000", Width: 2}

	result, err := orchestrator.Publish(context.Background(), alice.ID, stroke)
	req.NoError(err)

	evt := aliceTransport.nextOf(t, domain.EventDrawStroke)
	req.Equal(result.Seq, evt.Seq)
	req.Equal(stroke, evt.Payload)
}

func TestOrchestrator_Join_Backfills_History_Then_Streams_Live(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)

	// Given alice already talked in the room
	alice, _ := join(t, orchestrator, key, "alice", Resume{})
	first := say(t, orchestrator, alice, "m1")
	second := say(t, orchestrator, alice, "m2")

	// When bob joins without a checkpoint
	bob, bobTransport := join(t, orchestrator, key, "bob", Resume{})
	third := say(t, orchestrator, alice, "m3")

	// Then bob gets the history, the presence of bob and the live message, in seq order
	var received []domain.Event
	for len(received) < 4 {
		received = append(received, bobTransport.next(t))
	}
	req.Equal(first.Seq, received[0].Seq)
	req.Equal(domain.MessagePayload{Text: "m1"}, received[0].Payload)
	req.Equal(second.Seq, received[1].Seq)
	req.Equal(domain.EventPresence, received[2].Type)
	req.Equal(third.Seq, received[3].Seq)
	for i := 1; i < len(received); i++ {
		req.Less(received[i-1].Seq, received[i].Seq)
	}
	req.Equal(domain.StateActive, bob.State())
}

func TestOrchestrator_Join_Resumes_From_Checkpoint(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)

	alice, _ := join(t, orchestrator, key, "alice", Resume{})
	first := say(t, orchestrator, alice, "m1")
	second := say(t, orchestrator, alice, "m2")

	// When bob reconnects having seen m1
	_, bobTransport := join(t, orchestrator, key, "bob", Resume{RoomID: alice.RoomID, LastSeq: first.Seq})

	// Then only m2 is replayed
	evt := bobTransport.next(t)
	req.Equal(second.Seq, evt.Seq)
	req.Equal(domain.EventPresence, bobTransport.next(t).Type)
}

func TestOrchestrator_Join_Ignores_Checkpoint_From_Previous_Incarnation(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)

	alice, _ := join(t, orchestrator, key, "alice", Resume{})
	first := say(t, orchestrator, alice, "m1")

	// When bob comes back with a checkpoint far ahead but from another room instance
	_, bobTransport := join(t, orchestrator, key, "bob", Resume{RoomID: "course1-chat#old", LastSeq: 1000})

	// Then the full history of the live instance is replayed
	evt := bobTransport.next(t)
	req.Equal(first.Seq, evt.Seq)
}

func TestOrchestrator_Publish_Degraded_When_Store_Keeps_Failing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEventStore(ctrl)
	store.EXPECT().RecordIncarnation(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// Given a store rejecting every append
	store.EXPECT().Append(gomock.Any(), gomock.Any()).
		Return(errors.ErrPersistenceUnavailable).
		Times(3)

	orchestrator := startOrchestrator(t, store, testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)
	alice, aliceTransport := join(t, orchestrator, key, "alice", Resume{})
	_, bobTransport := join(t, orchestrator, key, "bob", Resume{})

	// When alice publishes
	result := say(t, orchestrator, alice, "lost on disk")

	// Then the message is still delivered live
	req.True(result.Degraded)
	evt := bobTransport.nextOf(t, domain.EventMessage)
	req.Equal(result.Seq, evt.Seq)

	// And only alice is told, out of band
	notice := aliceTransport.nextOf(t, domain.EventDegradedNotice)
	req.Zero(notice.Seq)
	req.Equal(domain.DegradedNotice{RefSeq: result.Seq, Reason: domain.DegradedPersistence}, notice.Payload)
	bobTransport.quiet(t, 100*time.Millisecond)
}

func TestOrchestrator_Join_Signals_Hole_Left_By_Degraded_Append(t *testing.T) {
	req := require.New(t)
	store := &flakyStore{EventStore: badgerStore(t)}
	orchestrator := startOrchestrator(t, store, testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)

	// Given m2 could not be stored
	alice, _ := join(t, orchestrator, key, "alice", Resume{})
	say(t, orchestrator, alice, "m1")
	store.failing.Store(true)
	req.True(say(t, orchestrator, alice, "m2").Degraded)
	store.failing.Store(false)
	third := say(t, orchestrator, alice, "m3")

	// When bob joins
	_, bobTransport := join(t, orchestrator, key, "bob", Resume{})

	// Then bob is warned that history is incomplete and gets the tail after the hole
	notice := bobTransport.next(t)
	req.Equal(domain.EventDegradedNotice, notice.Type)
	req.Equal(domain.DegradedIncompleteHistory, notice.Payload.(domain.DegradedNotice).Reason)
	evt := bobTransport.next(t)
	req.Equal(third.Seq, evt.Seq)
	req.Equal(domain.MessagePayload{Text: "m3"}, evt.Payload)
}

func TestOrchestrator_Hung_Writer_Is_Disconnected_Without_Blocking_Room(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	cfg.WriteTimeout = 50 * time.Millisecond
	orchestrator := startOrchestrator(t, badgerStore(t), cfg)
	key := domain.NewRoomKey("course1", domain.KindChat)

	alice, aliceTransport := join(t, orchestrator, key, "alice", Resume{})
	aliceTransport.nextOf(t, domain.EventPresence)

	// Given bob stops reading from the socket
	_, err := orchestrator.OpenRoom(context.Background(), key)
	req.NoError(err)
	hung := newFakeTransport()
	bob, err := orchestrator.Join(context.Background(), hung, key, "bob", Resume{})
	req.NoError(err)
	hung.hang.Store(true)

	// When alice keeps talking
	for i := 0; i < 3; i++ {
		say(t, orchestrator, alice, "still here")
	}

	// Then bob is removed after the write timeout
	req.Eventually(func() bool {
		return bob.State() == domain.StateRemoved && orchestrator.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	members, err := orchestrator.Registry().MembersOf(context.Background(), alice.RoomID)
	req.NoError(err)
	req.Equal([]domain.ConnectionID{alice.ID}, members)

	// And alice sees bob leave
	for {
		evt := aliceTransport.nextOf(t, domain.EventPresence)
		if evt.Payload.(domain.PresencePayload).Action == domain.PresenceLeft {
			req.Equal(domain.UserID("bob"), evt.Payload.(domain.PresencePayload).UserID)
			break
		}
	}
}

func TestOrchestrator_Leave_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindLiveSession)

	alice, aliceTransport := join(t, orchestrator, key, "alice", Resume{})
	orchestrator.Leave(alice.ID)
	orchestrator.Leave(alice.ID)

	req.Equal(domain.StateRemoved, alice.State())
	req.True(aliceTransport.closed.Load())
	req.Zero(orchestrator.ConnectionCount())
	req.Empty(orchestrator.Presence().Participants(alice.RoomID))

	_, err := orchestrator.Publish(context.Background(), alice.ID, domain.MessagePayload{Text: "late"})
	req.ErrorIs(err, errors.ErrConnectionLost)
}

func TestOrchestrator_Publish_Rejects_Invalid_Events(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)
	alice, _ := join(t, orchestrator, key, "alice", Resume{})

	_, err := orchestrator.Publish(context.Background(), alice.ID, domain.MessagePayload{Text: ""})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = orchestrator.Publish(context.Background(), alice.ID, domain.PresencePayload{UserID: "alice", Action: domain.PresenceJoined})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = orchestrator.Publish(context.Background(), alice.ID, nil)
	req.ErrorIs(err, errors.ErrValidation)
}

func TestOrchestrator_Two_Tabs_Of_Same_User_Announce_Presence_Once(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindLiveSession)

	observer, observerTransport := join(t, orchestrator, key, "instructor", Resume{})
	observerTransport.nextOf(t, domain.EventPresence)

	firstTab, _ := join(t, orchestrator, key, "alice", Resume{})
	secondTab, _ := join(t, orchestrator, key, "alice", Resume{})

	joined := observerTransport.nextOf(t, domain.EventPresence)
	req.Equal(domain.PresenceJoined, joined.Payload.(domain.PresencePayload).Action)
	req.Equal(2, orchestrator.Presence().Count(observer.RoomID, "alice"))

	orchestrator.Leave(firstTab.ID)
	observerTransport.quiet(t, 100*time.Millisecond)

	orchestrator.Leave(secondTab.ID)
	left := observerTransport.nextOf(t, domain.EventPresence)
	req.Equal(domain.PresenceLeft, left.Payload.(domain.PresencePayload).Action)
	req.Equal([]domain.UserID{"instructor"}, left.Payload.(domain.PresencePayload).Participants)
}

func TestDispatcher_Publish_To_Room_Without_Subscribers_Is_Sequenced_And_Stored(t *testing.T) {
	req := require.New(t)
	store := badgerStore(t)
	orchestrator := startOrchestrator(t, store, testConfig())
	ctx := context.Background()

	// Given a live room nobody joined
	room, err := orchestrator.OpenRoom(ctx, domain.NewRoomKey("course1", domain.KindChat))
	req.NoError(err)

	// When an event is published into it
	result, err := orchestrator.Dispatcher().Publish(ctx, domain.Event{
		RoomID:  room.ID,
		Type:    domain.EventMessage,
		Payload: domain.MessagePayload{Text: "into the void"},
	})

	// Then it still gets a seq and reaches the store
	req.NoError(err)
	req.Equal(uint64(1), result.Seq)
	req.False(result.Degraded)
	req.Empty(result.Failed)
	records, err := store.Fetch(ctx, room.ID, 0)
	req.NoError(err)
	req.Len(records, 1)
	req.Equal(result.Seq, records[0].Seq)
	req.Equal(domain.MessagePayload{Text: "into the void"}, records[0].Event.Payload)
}

func TestOrchestrator_Chat_Messages_Are_Censored_Before_Sequencing(t *testing.T) {
	req := require.New(t)
	store := badgerStore(t)
	moderator, err := moderation.NewModerator([]string{"idiot"}, '*', testLogger())
	req.NoError(err)
	cfg := testConfig()
	cfg.Policy.Censor = moderator
	orchestrator := startOrchestrator(t, store, cfg)
	key := domain.NewRoomKey("course1", domain.KindChat)

	alice, _ := join(t, orchestrator, key, "alice", Resume{})
	_, bobTransport := join(t, orchestrator, key, "bob", Resume{})

	// When alice hides an insult behind digits
	result := say(t, orchestrator, alice, "you are an 1d10t")

	// Then bob only sees the masked text
	evt := bobTransport.nextOf(t, domain.EventMessage)
	req.Equal(result.Seq, evt.Seq)
	req.Equal(domain.MessagePayload{Text: "you are an *****"}, evt.Payload)

	// And the stored history never held the original
	records, err := store.Fetch(context.Background(), alice.RoomID, 0)
	req.NoError(err)
	req.Len(records, 1)
	req.Equal(domain.MessagePayload{Text: "you are an *****"}, records[0].Event.Payload)
}

func TestOrchestrator_Join_Greets_Before_Backfill(t *testing.T) {
	req := require.New(t)
	orchestrator := startOrchestrator(t, badgerStore(t), testConfig())
	key := domain.NewRoomKey("course1", domain.KindChat)
	alice, _ := join(t, orchestrator, key, "alice", Resume{})
	first := say(t, orchestrator, alice, "m1")

	// When bob joins a room with history
	transport := newFakeTransport()
	bob, err := orchestrator.Join(context.Background(), transport, key, "bob", Resume{})
	req.NoError(err)

	// Then the greeting comes first with the participants at join time
	greeting := transport.next(t)
	req.Equal(domain.EventJoined, greeting.Type)
	req.Equal(domain.UserID("bob"), greeting.SenderUser)
	req.Equal(domain.JoinedPayload{Participants: []domain.UserID{"alice", "bob"}}, greeting.Payload)
	req.Equal(first.Seq, transport.next(t).Seq)
	req.Equal(domain.EventPresence, transport.next(t).Type)
	req.Equal(domain.StateActive, bob.State())
}

func TestOrchestrator_Join_Fails_When_Greeting_Cannot_Be_Written(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	cfg.WriteTimeout = 50 * time.Millisecond
	orchestrator := startOrchestrator(t, badgerStore(t), cfg)
	key := domain.NewRoomKey("course1", domain.KindChat)
	alice, _ := join(t, orchestrator, key, "alice", Resume{})

	// Given a client that never reads
	hung := newFakeTransport()
	hung.hang.Store(true)

	// When it joins
	_, err := orchestrator.Join(context.Background(), hung, key, "bob", Resume{})

	// Then the join fails and leaves no member behind
	req.ErrorIs(err, errors.ErrConnectionLost)
	req.Equal(1, orchestrator.ConnectionCount())
	members, err := orchestrator.Registry().MembersOf(context.Background(), alice.RoomID)
	req.NoError(err)
	req.Equal([]domain.ConnectionID{alice.ID}, members)
	req.Equal([]domain.UserID{"alice"}, orchestrator.Presence().Participants(alice.RoomID))
}
