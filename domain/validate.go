package domain

import (
	"fmt"
	"live-hub/errors"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateEvent checks the event against the closed set of event shapes.
// maxTextLength bounds chat messages in runes, 0 disables the bound.
func ValidateEvent(e Event, maxTextLength int) error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: missing room", errors.ErrValidation)
	}
	if e.Payload == nil {
		return fmt.Errorf("%w: missing payload for %q", errors.ErrValidation, e.Type)
	}
	if e.Payload.EventType() != e.Type {
		return fmt.Errorf("%w: payload %q does not match type %q",
			errors.ErrValidation, e.Payload.EventType(), e.Type)
	}
	switch p := e.Payload.(type) {
	case MessagePayload:
		if maxTextLength > 0 && utf8.RuneCountInString(p.Text) > maxTextLength {
			return fmt.Errorf("%w: message longer than %d characters", errors.ErrValidation, maxTextLength)
		}
		return structErr(p)
	case StrokePayload:
		return structErr(p)
	case ClearPayload, JoinedPayload:
		return nil
	case PresencePayload:
		return structErr(p)
	case DegradedNotice:
		return structErr(p)
	default:
		return fmt.Errorf("%w: unknown event type %q", errors.ErrValidation, e.Type)
	}
}

func structErr(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}
