package auth

import (
	"context"
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
)

// ScopeAuthorizer grants a room when the verified identity carries the room
// scope, i.e. the user is enrolled in the course or member of the group.
type ScopeAuthorizer struct{}

func (ScopeAuthorizer) Authorize(_ context.Context, identity domain.Identity, key domain.RoomKey) error {
	if identity.UserID == "" {
		return fmt.Errorf("%w: anonymous identity", errors.ErrAuthorization)
	}
	if !identity.HasScope(key.Scope) {
		return fmt.Errorf("%w: %s is not enrolled in %s", errors.ErrAuthorization, identity.UserID, key.Scope)
	}
	return nil
}
