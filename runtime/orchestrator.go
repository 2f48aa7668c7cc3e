// Package runtime hosts the live side of the hub: rooms, connections,
// presence and the publish path. It owns no transport and no business rules
// beyond ordering, delivery and persistence of room events.
package runtime

import (
	"context"
	"fmt"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"live-hub/runtime/workers"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// Resume is the client checkpoint sent on join.
type Resume struct {
	RoomID  domain.RoomID
	LastSeq uint64
}

type Orchestrator struct {
	log           *slog.Logger
	supervisor    contract.ISupervisor
	store         contract.EventStore
	presence      *PresenceTracker
	manager       *Manager
	registry      *Registry
	dispatcher    *Dispatcher
	sweepInterval time.Duration
	statsInterval time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, store contract.EventStore,
	cfg RoomConfig, sweepInterval, statsInterval time.Duration) *Orchestrator {
	presence := NewPresenceTracker()
	manager := NewManager(log, supervisor, store, presence, cfg)
	return &Orchestrator{
		log:           log,
		supervisor:    supervisor,
		store:         store,
		presence:      presence,
		manager:       manager,
		registry:      NewRegistry(log, manager, cfg.OutboxSize, cfg.WriteTimeout),
		dispatcher:    NewDispatcher(manager, cfg.Policy, log),
		sweepInterval: sweepInterval,
		statsInterval: statsInterval,
	}
}

// Start registers the background workers and runs the supervisor until ctx is done.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(workers.NewSweeperWorker(o.manager, o.sweepInterval, o.log))
	if o.statsInterval > 0 {
		o.supervisor.Add(workers.NewStatsWorker(o, o.statsInterval, o.log))
	}
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	o.registry.CloseAll()
}

func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
}

// OpenRoom returns the live room for the key, creating it if needed.
func (o *Orchestrator) OpenRoom(ctx context.Context, key domain.RoomKey) (*Room, error) {
	return o.manager.GetOrCreateRoom(ctx, key, key.Kind)
}

// Join registers the transport in the live room of the key, greets it with a
// joined event, writes the missed history and then switches the connection
// to live streaming. Events sequenced meanwhile are queued in the outbox, so
// the client sees the greeting first and then every seq exactly once, in order.
func (o *Orchestrator) Join(ctx context.Context, transport contract.Transport, key domain.RoomKey,
	userID domain.UserID, resume Resume) (*Connection, error) {
	conn, point, err := o.registry.registerPaused(ctx, transport, key, userID)
	if err != nil {
		return nil, err
	}
	greeting := domain.Event{
		RoomID:     conn.RoomID,
		SenderUser: userID,
		Type:       domain.EventJoined,
		Payload:    domain.JoinedPayload{Participants: point.participants},
		At:         time.Now().UTC(),
	}
	if err := conn.SendDirect(ctx, greeting); err != nil {
		o.registry.Unregister(conn.ID)
		return nil, err
	}
	if err := o.backfill(ctx, conn, point, resume); err != nil {
		o.registry.Unregister(conn.ID)
		return nil, err
	}
	conn.StartStreaming()
	return conn, nil
}

func (o *Orchestrator) backfill(ctx context.Context, conn *Connection, point joinPoint, resume Resume) error {
	since := uint64(0)
	// A checkpoint from an older incarnation does not apply to the new seq space
	if resume.RoomID == conn.RoomID {
		since = resume.LastSeq
	}
	if since >= point.persistedHead {
		return nil
	}

	if err := conn.room.persister.flush(ctx); err != nil {
		return err
	}
	records, err := o.store.Fetch(ctx, conn.RoomID, since)
	incomplete := errors.Is(err, errors.ErrIncompleteHistory)
	if err != nil && !incomplete {
		o.log.Warn("History unavailable for join", "room_id", conn.RoomID, "since", since, "error", err)
		return conn.SendDirect(ctx, notice(conn.RoomID, since, domain.DegradedPersistence))
	}

	records = lo.Filter(records, func(record domain.PersistedRecord, _ int) bool { return record.Seq <= point.head })
	if len(records) == 0 || records[len(records)-1].Seq != point.persistedHead {
		incomplete = true
	}
	if incomplete {
		if err := conn.SendDirect(ctx, notice(conn.RoomID, since, domain.DegradedIncompleteHistory)); err != nil {
			return err
		}
	}
	for _, record := range records {
		if err := conn.SendDirect(ctx, record.Event); err != nil {
			return err
		}
	}
	o.log.Debug("Backfill written", "conn_id", conn.ID, "since", since, "records", len(records), "incomplete", incomplete)
	return nil
}

// Publish sends a client event into the room of the connection. When the event
// could not be persisted the sender alone receives a degraded notice.
func (o *Orchestrator) Publish(ctx context.Context, id domain.ConnectionID, payload domain.Payload) (domain.DeliveryResult, error) {
	conn, ok := o.registry.Connection(id)
	if !ok {
		return domain.DeliveryResult{}, fmt.Errorf("%w: %s", errors.ErrConnectionLost, id)
	}
	if payload == nil {
		return domain.DeliveryResult{}, fmt.Errorf("%w: missing payload", errors.ErrValidation)
	}
	result, err := o.dispatcher.Publish(ctx, domain.Event{
		RoomID:     conn.RoomID,
		Sender:     conn.ID,
		SenderUser: conn.UserID,
		Type:       payload.EventType(),
		Payload:    payload,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return result, err
	}
	if result.Degraded {
		conn.Notify(notice(conn.RoomID, result.Seq, domain.DegradedPersistence))
	}
	return result, nil
}

func (o *Orchestrator) Leave(id domain.ConnectionID) {
	o.registry.Unregister(id)
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) Manager() *Manager {
	return o.manager
}

func (o *Orchestrator) Presence() *PresenceTracker {
	return o.presence
}

func (o *Orchestrator) Dispatcher() *Dispatcher {
	return o.dispatcher
}

func (o *Orchestrator) RoomStats() []contract.RoomStats {
	return o.manager.RoomStats()
}

func (o *Orchestrator) ConnectionCount() int {
	return o.registry.Count()
}

// notice builds an out-of-band event. It carries seq 0 and never enters the room sequence.
func notice(roomID domain.RoomID, refSeq uint64, reason domain.DegradedReason) domain.Event {
	return domain.Event{
		RoomID:  roomID,
		Type:    domain.EventDegradedNotice,
		Payload: domain.DegradedNotice{RefSeq: refSeq, Reason: reason},
		At:      time.Now().UTC(),
	}
}
