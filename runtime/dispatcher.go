package runtime

import (
	"context"
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"
)

// Censor rewrites chat text before it is sequenced.
type Censor interface {
	Censor(text string) string
}

// DispatchPolicy holds the per-deployment publish rules.
type DispatchPolicy struct {
	EchoToSender   bool
	PersistStrokes bool
	MaxTextLength  int
	Censor         Censor
}

// Persistable tells which event types go to the durable log. Presence and
// notices are ephemeral; whiteboard strokes follow PersistStrokes.
func (p DispatchPolicy) Persistable(eventType domain.EventType) bool {
	switch eventType {
	case domain.EventMessage:
		return true
	case domain.EventDrawStroke, domain.EventClear:
		return p.PersistStrokes
	default:
		return false
	}
}

// Dispatcher is the single entry point for events published into rooms.
type Dispatcher struct {
	manager *Manager
	policy  DispatchPolicy
	log     *slog.Logger
}

func NewDispatcher(manager *Manager, policy DispatchPolicy, log *slog.Logger) *Dispatcher {
	return &Dispatcher{manager: manager, policy: policy, log: log}
}

// Publish validates the event, sequences it in its room and waits for the
// persistence outcome. A persistable event that could not be stored is still
// delivered and reported with Degraded set.
func (d *Dispatcher) Publish(ctx context.Context, evt domain.Event) (domain.DeliveryResult, error) {
	if evt.IsSystem() {
		return domain.DeliveryResult{}, fmt.Errorf("%w: %s events are emitted by the server only", errors.ErrValidation, evt.Type)
	}
	if err := domain.ValidateEvent(evt, d.policy.MaxTextLength); err != nil {
		return domain.DeliveryResult{}, err
	}
	if msg, ok := evt.Payload.(domain.MessagePayload); ok && d.policy.Censor != nil {
		msg.Text = d.policy.Censor.Censor(msg.Text)
		evt.Payload = msg
	}

	room, ok := d.manager.LookupID(evt.RoomID)
	if !ok {
		return domain.DeliveryResult{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, evt.RoomID)
	}

	result, ack, err := room.publish(ctx, evt)
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	if ack == nil {
		return result, nil
	}
	select {
	case stored := <-ack:
		result.Degraded = !stored
	case <-ctx.Done():
		result.Degraded = true
	}
	if result.Degraded {
		d.log.Warn("Event delivered without persistence", "room_id", evt.RoomID, "seq", result.Seq)
	}
	return result, nil
}
