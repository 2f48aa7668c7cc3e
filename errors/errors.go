package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrAuthorization          = fmt.Errorf("not entitled to room")
	ErrRoomNotFound           = fmt.Errorf("room not found")
	ErrRoomClosed             = fmt.Errorf("room closed")
	ErrValidation             = fmt.Errorf("invalid event")
	ErrPersistenceUnavailable = fmt.Errorf("persistence unavailable")
	ErrConnectionLost         = fmt.Errorf("connection lost")
	ErrOverload               = fmt.Errorf("overload")
	ErrIncompleteHistory      = fmt.Errorf("incomplete history")
	ErrInvalidToken           = fmt.Errorf("invalid token")
	ErrUnknownRoomKind        = fmt.Errorf("unknown room kind")
)

// Reason codes sent to clients when a join or publish is rejected.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonRoomNotFound = "room-not-found"
	ReasonInvalidEvent = "invalid-event"
	ReasonOverload     = "overload"
	ReasonInternal     = "internal"
)

// ReasonCode maps an error to the reason code rendered on the wire.
// Anything outside the taxonomy is reported as internal so that
// storage or transport details never leak to other participants.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrAuthorization), Is(err, ErrInvalidToken):
		return ReasonUnauthorized
	case Is(err, ErrRoomNotFound), Is(err, ErrRoomClosed), Is(err, ErrUnknownRoomKind):
		return ReasonRoomNotFound
	case Is(err, ErrValidation):
		return ReasonInvalidEvent
	case Is(err, ErrOverload):
		return ReasonOverload
	default:
		return ReasonInternal
	}
}

func Is(err, target error) bool { return stderrors.Is(err, target) }
