//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=mocks/mock_room_service.go -package=mocks
package services

import (
	"context"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"live-hub/runtime"
	"log/slog"
	"time"
)

type IRoomService interface {
	Join(ctx context.Context, identity domain.Identity, transport contract.Transport,
		key domain.RoomKey, resume runtime.Resume) (*runtime.Connection, error)
	Publish(ctx context.Context, id domain.ConnectionID, payload domain.Payload) (domain.DeliveryResult, error)
	Leave(id domain.ConnectionID)
	MediaToken(ctx context.Context, identity domain.Identity, key domain.RoomKey) (string, time.Time, error)
}

// MediaIssuer signs grants for the external media provider.
type MediaIssuer interface {
	Issue(identity domain.Identity, key domain.RoomKey) (string, time.Time, error)
}

// RoomService is the authorization boundary in front of the orchestrator:
// nothing reaches a room before the collaborator approved the membership.
type RoomService struct {
	orchestrator *runtime.Orchestrator
	authorizer   contract.Authorizer
	media        MediaIssuer
	log          *slog.Logger
}

func NewRoomService(o *runtime.Orchestrator, authorizer contract.Authorizer, media MediaIssuer, log *slog.Logger) *RoomService {
	return &RoomService{orchestrator: o, authorizer: authorizer, media: media, log: log}
}

// Join authorizes the identity, opens the room and registers the transport.
// A room destroyed between the lookup and the join is recreated once.
func (s *RoomService) Join(ctx context.Context, identity domain.Identity, transport contract.Transport,
	key domain.RoomKey, resume runtime.Resume) (*runtime.Connection, error) {
	if err := s.authorizer.Authorize(ctx, identity, key); err != nil {
		s.log.Info("Join refused", "user_id", identity.UserID, "room_key", key, "error", err)
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		if _, err := s.orchestrator.OpenRoom(ctx, key); err != nil {
			return nil, err
		}
		conn, err := s.orchestrator.Join(ctx, transport, key, identity.UserID, resume)
		if err == nil {
			return conn, nil
		}
		retryable := errors.Is(err, errors.ErrRoomNotFound) || errors.Is(err, errors.ErrRoomClosed)
		if !retryable || attempt == 2 {
			return nil, err
		}
		s.log.Debug("Room destroyed during join, retrying", "room_key", key)
	}
}

func (s *RoomService) Publish(ctx context.Context, id domain.ConnectionID, payload domain.Payload) (domain.DeliveryResult, error) {
	return s.orchestrator.Publish(ctx, id, payload)
}

func (s *RoomService) Leave(id domain.ConnectionID) {
	s.orchestrator.Leave(id)
}

// MediaToken grants access to the media session of a live-session room.
func (s *RoomService) MediaToken(ctx context.Context, identity domain.Identity, key domain.RoomKey) (string, time.Time, error) {
	if err := s.authorizer.Authorize(ctx, identity, key); err != nil {
		return "", time.Time{}, err
	}
	return s.media.Issue(identity, key)
}
