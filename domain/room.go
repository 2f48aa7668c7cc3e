// Package domain contains the core concepts of the real-time room layer.
// This file defines room identity: the external key and the internal incarnation id.
package domain

import (
	"fmt"
	"live-hub/errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RoomKind string

const (
	KindChat        RoomKind = "chat"
	KindWhiteboard  RoomKind = "whiteboard"
	KindLiveSession RoomKind = "live-session"
)

// Longest suffix first so "live-session" is never read as a scope ending in "-live".
var kindsBySuffixLength = []RoomKind{KindLiveSession, KindWhiteboard, KindChat}

func (k RoomKind) Valid() bool {
	switch k {
	case KindChat, KindWhiteboard, KindLiveSession:
		return true
	}
	return false
}

// RoomKey is the external identity of a room: the scope supplied by the
// authorization collaborator (a course or study group) plus the room kind.
type RoomKey struct {
	Scope string
	Kind  RoomKind
}

func NewRoomKey(scope string, kind RoomKind) RoomKey {
	return RoomKey{Scope: scope, Kind: kind}
}

func (k RoomKey) String() string {
	return k.Scope + "-" + string(k.Kind)
}

// ParseRoomKey reads the "<scope>-<kind>" form used on the wire, e.g. "course1-chat".
// "#" is reserved as the separator of room ids.
func ParseRoomKey(s string) (RoomKey, error) {
	if strings.Contains(s, "#") {
		return RoomKey{}, fmt.Errorf("%w: %q contains '#'", errors.ErrValidation, s)
	}
	for _, kind := range kindsBySuffixLength {
		suffix := "-" + string(kind)
		if scope, ok := strings.CutSuffix(s, suffix); ok {
			if scope == "" {
				return RoomKey{}, fmt.Errorf("%w: empty scope in %q", errors.ErrValidation, s)
			}
			return RoomKey{Scope: scope, Kind: kind}, nil
		}
	}
	return RoomKey{}, fmt.Errorf("%w: %q", errors.ErrUnknownRoomKind, s)
}

// RoomID identifies one incarnation of a room. A room destroyed after its idle
// timeout and recreated under the same key gets a new RoomID, hence a fresh
// sequence space.
type RoomID string

func NewRoomID(key RoomKey) RoomID {
	return RoomID(key.String() + "#" + uuid.NewString())
}

// Key returns the external key part of the id.
func (id RoomID) Key() (RoomKey, error) {
	sep := strings.LastIndex(string(id), "#")
	if sep < 0 {
		return RoomKey{}, fmt.Errorf("%w: malformed room id %q", errors.ErrValidation, id)
	}
	return ParseRoomKey(string(id)[:sep])
}

// RoomIncarnation records that a RoomID existed for a key, so history of a
// destroyed instance stays reachable by key.
type RoomIncarnation struct {
	Key       RoomKey
	RoomID    RoomID
	CreatedAt time.Time
}
