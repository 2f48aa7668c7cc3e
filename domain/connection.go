package domain

import "github.com/google/uuid"

type ConnectionID string

type UserID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// ConnState follows Connecting -> Active -> {Disconnected, Error} -> Removed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateActive
	StateDisconnected
	StateError
	StateRemoved
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to ConnState) bool {
	switch from {
	case StateConnecting:
		return to == StateActive || to == StateDisconnected || to == StateError
	case StateActive:
		return to == StateDisconnected || to == StateError
	case StateDisconnected, StateError:
		return to == StateRemoved
	}
	return false
}
