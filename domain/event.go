package domain

import (
	"time"
)

type EventType string

const (
	EventMessage        EventType = "message"
	EventDrawStroke     EventType = "draw-stroke"
	EventClear          EventType = "clear"
	EventPresence       EventType = "presence"
	EventDegradedNotice EventType = "degraded-notice"
	EventJoined         EventType = "joined"
)

// Payload is the closed set of event bodies. Only types of this package implement it.
type Payload interface {
	EventType() EventType
}

type MessagePayload struct {
	Text string `validate:"required"`
}

type Point struct {
	X float64
	Y float64
}

type StrokePayload struct {
	Tool   string  `validate:"required,oneof=pen eraser"`
	Points []Point `validate:"required,min=1,max=4096"`
	Color  string  `validate:"required,hexcolor"`
	Width  int     `validate:"gte=1,lte=64"`
}

type ClearPayload struct{}

type PresenceAction string

const (
	PresenceJoined PresenceAction = "joined"
	PresenceLeft   PresenceAction = "left"
)

type PresencePayload struct {
	UserID       UserID         `validate:"required"`
	Action       PresenceAction `validate:"required,oneof=joined left"`
	Participants []UserID
}

type DegradedReason string

const (
	DegradedPersistence       DegradedReason = "persistence-unavailable"
	DegradedIncompleteHistory DegradedReason = "incomplete-history"
	DegradedOverload          DegradedReason = "overload"
)

type DegradedNotice struct {
	RefSeq uint64
	Reason DegradedReason `validate:"required,oneof=persistence-unavailable incomplete-history overload"`
}

// JoinedPayload greets a connection that just joined. Participants is the
// presence snapshot taken when the join took effect.
type JoinedPayload struct {
	Participants []UserID
}

func (MessagePayload) EventType() EventType  { return EventMessage }
func (StrokePayload) EventType() EventType   { return EventDrawStroke }
func (ClearPayload) EventType() EventType    { return EventClear }
func (PresencePayload) EventType() EventType { return EventPresence }
func (DegradedNotice) EventType() EventType  { return EventDegradedNotice }
func (JoinedPayload) EventType() EventType   { return EventJoined }

// Event is one typed, sequenced unit of room activity.
// Seq and At are assigned by the room when the event is sequenced.
type Event struct {
	RoomID     RoomID
	Sender     ConnectionID
	SenderUser UserID
	Type       EventType
	Payload    Payload
	Seq        uint64
	At         time.Time
}

// IsSystem reports whether the event originates from the room itself rather than a client.
func (e Event) IsSystem() bool {
	return e.Type == EventPresence || e.Type == EventDegradedNotice || e.Type == EventJoined
}

// PersistedRecord is an event retained by the persistence adapter.
// PrevSeq is the sequence of the previous persistable event of the same room
// so that readers can detect holes left by pruning or degraded appends.
type PersistedRecord struct {
	RoomID  RoomID
	Seq     uint64
	PrevSeq uint64
	Event   Event
}

// DeliveryResult is returned to the publisher once the event is fanned out.
type DeliveryResult struct {
	Seq      uint64
	Failed   []ConnectionID
	Degraded bool
}
