package gateway

import (
	"encoding/json"
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Client frame types.
const (
	FrameJoin    = "join"
	FrameMessage = "message"
	FrameDraw    = "draw"
	FrameClear   = "clear"
	FrameLeave   = "leave"
)

// Server-only frame types. Room events reuse the client names.
const (
	FramePresence = "presence"
	FrameNotice   = "degraded-notice"
	FrameError    = "error"
	FrameJoined   = "joined"
)

// ClientFrame is the envelope of every frame read from a websocket.
type ClientFrame struct {
	Type       string          `json:"type" validate:"required,oneof=join message draw clear leave"`
	RoomKey    string          `json:"room_key" validate:"required_if=Type join"`
	LastSeq    uint64          `json:"last_seq"`
	LastRoomID string          `json:"last_room_id"`
	Payload    json.RawMessage `json:"payload"`
}

// ServerFrame is the envelope of every frame written to a websocket.
// Out-of-band frames (notices, errors, acks) carry seq 0.
type ServerFrame struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageBody struct {
	Text string `json:"text"`
}

type PointBody struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeBody accepts a full stroke or a single point given as x and y.
type StrokeBody struct {
	Tool   string      `json:"tool"`
	Points []PointBody `json:"points,omitempty"`
	X      *float64    `json:"x,omitempty"`
	Y      *float64    `json:"y,omitempty"`
	Color  string      `json:"color"`
	Width  int         `json:"width"`
}

type PresenceBody struct {
	UserID       string   `json:"user_id"`
	Action       string   `json:"action"`
	Participants []string `json:"participants"`
}

type NoticeBody struct {
	RefSeq uint64 `json:"ref_seq"`
	Reason string `json:"reason"`
}

type ErrorBody struct {
	Reason string `json:"reason"`
	Frame  string `json:"frame,omitempty"`
}

type JoinedBody struct {
	RoomKey      string   `json:"room_key"`
	UserID       string   `json:"user_id"`
	Participants []string `json:"participants"`
}

func decodeClientFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: malformed frame: %v", errors.ErrValidation, err)
	}
	if err := validate.Struct(frame); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return frame, nil
}

// decodePayload turns the payload of a publish frame into a domain payload.
// Field level rules are enforced later by the dispatcher.
func decodePayload(frame ClientFrame) (domain.Payload, error) {
	switch frame.Type {
	case FrameMessage:
		var body MessageBody
		if err := unmarshalPayload(frame.Payload, &body); err != nil {
			return nil, err
		}
		return domain.MessagePayload{Text: body.Text}, nil
	case FrameDraw:
		var body StrokeBody
		if err := unmarshalPayload(frame.Payload, &body); err != nil {
			return nil, err
		}
		points := make([]domain.Point, 0, len(body.Points)+1)
		for _, p := range body.Points {
			points = append(points, domain.Point{X: p.X, Y: p.Y})
		}
		if body.X != nil && body.Y != nil {
			points = append(points, domain.Point{X: *body.X, Y: *body.Y})
		}
		return domain.StrokePayload{Tool: body.Tool, Points: points, Color: body.Color, Width: body.Width}, nil
	case FrameClear:
		return domain.ClearPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q carries no payload", errors.ErrValidation, frame.Type)
	}
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", errors.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", errors.ErrValidation, err)
	}
	return nil
}

// toServerFrame renders a room event for the wire.
func toServerFrame(evt domain.Event) ServerFrame {
	frame := ServerFrame{
		RoomID:    string(evt.RoomID),
		SenderID:  string(evt.SenderUser),
		Seq:       evt.Seq,
		Timestamp: evt.At,
	}
	switch p := evt.Payload.(type) {
	case domain.MessagePayload:
		frame.Type = FrameMessage
		frame.Payload = MessageBody{Text: p.Text}
	case domain.StrokePayload:
		frame.Type = FrameDraw
		points := make([]PointBody, len(p.Points))
		for i, point := range p.Points {
			points[i] = PointBody{X: point.X, Y: point.Y}
		}
		frame.Payload = StrokeBody{Tool: p.Tool, Points: points, Color: p.Color, Width: p.Width}
	case domain.ClearPayload:
		frame.Type = FrameClear
	case domain.PresencePayload:
		frame.Type = FramePresence
		frame.Payload = PresenceBody{UserID: string(p.UserID), Action: string(p.Action), Participants: userIDs(p.Participants)}
	case domain.DegradedNotice:
		frame.Type = FrameNotice
		frame.Payload = NoticeBody{RefSeq: p.RefSeq, Reason: string(p.Reason)}
	case domain.JoinedPayload:
		frame.Type = FrameJoined
		frame.SenderID = ""
		key, _ := evt.RoomID.Key()
		frame.Payload = JoinedBody{RoomKey: key.String(), UserID: string(evt.SenderUser), Participants: userIDs(p.Participants)}
	default:
		frame.Type = string(evt.Type)
	}
	return frame
}

func errorFrame(err error, frameType string) ServerFrame {
	return ServerFrame{
		Type:      FrameError,
		Payload:   ErrorBody{Reason: errors.ReasonCode(err), Frame: frameType},
		Timestamp: time.Now().UTC(),
	}
}

func userIDs(ids []domain.UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
