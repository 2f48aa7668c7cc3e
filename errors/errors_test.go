package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReasonCode(t *testing.T) {
	req := require.New(t)

	req.Equal("", ReasonCode(nil))
	req.Equal(ReasonUnauthorized, ReasonCode(fmt.Errorf("%w: course1", ErrAuthorization)))
	req.Equal(ReasonUnauthorized, ReasonCode(ErrInvalidToken))
	req.Equal(ReasonRoomNotFound, ReasonCode(fmt.Errorf("register: %w", ErrRoomNotFound)))
	req.Equal(ReasonRoomNotFound, ReasonCode(ErrRoomClosed))
	req.Equal(ReasonInvalidEvent, ReasonCode(fmt.Errorf("%w: empty text", ErrValidation)))
	req.Equal(ReasonOverload, ReasonCode(ErrOverload))
	req.Equal(ReasonInternal, ReasonCode(fmt.Errorf("badger: disk full")))
	// Persistence problems are surfaced as a degraded flag, never as a rejection reason
	req.Equal(ReasonInternal, ReasonCode(ErrPersistenceUnavailable))
}
