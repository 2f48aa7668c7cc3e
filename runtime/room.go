package runtime

import (
	"context"
	"fmt"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// RoomConfig groups the tunables shared by every room of a manager.
type RoomConfig struct {
	QueueSize          int
	PersistQueueSize   int
	OutboxSize         int
	IdleTimeout        time.Duration
	WriteTimeout       time.Duration
	PersistMaxAttempts int
	PersistBackoff     time.Duration
	HistoryLimit       int
	Policy             DispatchPolicy
}

type joinPoint struct {
	// head is the last seq assigned before the join took effect.
	head uint64
	// persistedHead is the last persistable seq at or before head.
	persistedHead uint64
	participants  []domain.UserID
}

type roomCommand interface{ isRoomCommand() }

type joinCommand struct {
	conn  *Connection
	reply chan joinReply
}

type joinReply struct {
	point joinPoint
	err   error
}

// leaveRequest is not a room command: leaves bypass the bounded queue so that
// a saturated room still lets its members go.
type leaveRequest struct {
	id    domain.ConnectionID
	reply chan struct{}
}

type publishCommand struct {
	evt   domain.Event
	reply chan publishReply
}

type publishReply struct {
	result domain.DeliveryResult
	ack    <-chan bool
	err    error
}

type membersCommand struct {
	reply chan []domain.ConnectionID
}

type retireCommand struct {
	now   time.Time
	reply chan bool
}

func (joinCommand) isRoomCommand()    {}
func (publishCommand) isRoomCommand() {}
func (membersCommand) isRoomCommand() {}
func (retireCommand) isRoomCommand()  {}

// Room owns its members, its sequence counter and its activity clock. All of
// them are only touched by the goroutine running Run, fed by a bounded queue.
type Room struct {
	Key       domain.RoomKey
	ID        domain.RoomID
	CreatedAt time.Time

	commands    chan roomCommand
	done        chan struct{}
	closeOnce   sync.Once
	persister   *Persister
	presence    *PresenceTracker
	policy      DispatchPolicy
	idleTimeout time.Duration
	log         *slog.Logger

	leaveMu       sync.Mutex
	pendingLeaves []leaveRequest
	leaveSignal   chan struct{}

	members       []*Connection
	seq           uint64
	lastPersisted uint64
	lastActivity  time.Time

	// Mirrors of the loop state, readable from any goroutine for stats.
	headSeq      atomic.Uint64
	memberCount  atomic.Int32
	activityNano atomic.Int64
}

func newRoom(key domain.RoomKey, store contract.EventStore, presence *PresenceTracker, cfg RoomConfig, log *slog.Logger) *Room {
	id := domain.NewRoomID(key)
	now := time.Now().UTC()
	roomLog := log.With("room_id", id)
	r := &Room{
		Key:          key,
		ID:           id,
		CreatedAt:    now,
		commands:     make(chan roomCommand, cfg.QueueSize),
		done:         make(chan struct{}),
		leaveSignal:  make(chan struct{}, 1),
		persister:    newPersister(id, store, cfg, roomLog),
		presence:     presence,
		policy:       cfg.Policy,
		idleTimeout:  cfg.IdleTimeout,
		log:          roomLog,
		lastActivity: now,
	}
	r.activityNano.Store(now.UnixNano())
	return r
}

// Run is the single writer of the room state. Pending leaves are applied
// before every queued command.
func (r *Room) Run(ctx context.Context) error {
	for {
		r.applyLeaves(r.takeLeaves())
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()
		case <-r.leaveSignal:
		case cmd := <-r.commands:
			if retired := r.apply(cmd); retired {
				r.log.Info("Room destroyed after idle timeout", "key", r.Key, "last_seq", r.seq)
				r.shutdown()
				return nil
			}
		}
	}
}

func (r *Room) apply(cmd roomCommand) bool {
	switch c := cmd.(type) {
	case joinCommand:
		c.reply <- r.handleJoin(c.conn)
	case publishCommand:
		c.reply <- r.handlePublish(c.evt)
	case membersCommand:
		c.reply <- lo.Map(r.members, func(m *Connection, _ int) domain.ConnectionID { return m.ID })
	case retireCommand:
		idle := len(r.members) == 0 && c.now.Sub(r.lastActivity) >= r.idleTimeout
		c.reply <- idle
		return idle
	}
	return false
}

func (r *Room) handleJoin(conn *Connection) joinReply {
	if lo.ContainsBy(r.members, func(m *Connection) bool { return m.ID == conn.ID }) {
		return joinReply{point: joinPoint{head: r.seq, persistedHead: r.lastPersisted, participants: r.presence.Participants(r.ID)}}
	}
	if !conn.transition(domain.StateActive) {
		return joinReply{err: fmt.Errorf("%w: connection %s is %s", errors.ErrConnectionLost, conn.ID, conn.State())}
	}
	r.members = append(r.members, conn)
	r.memberCount.Store(int32(len(r.members)))
	r.touch()

	point := joinPoint{head: r.seq, persistedHead: r.lastPersisted}
	if payload, changed := r.presence.Joined(r.ID, conn.UserID); changed {
		r.emit(domain.Event{Type: domain.EventPresence, Payload: payload})
	}
	point.participants = r.presence.Participants(r.ID)
	return joinReply{point: point}
}

func (r *Room) handlePublish(evt domain.Event) publishReply {
	if evt.Sender != "" && !lo.ContainsBy(r.members, func(m *Connection) bool { return m.ID == evt.Sender }) {
		return publishReply{err: fmt.Errorf("%w: %s is not a member of %s", errors.ErrConnectionLost, evt.Sender, r.ID)}
	}
	r.touch()
	evt, ack, failed := r.emit(evt)
	return publishReply{
		result: domain.DeliveryResult{Seq: evt.Seq, Failed: failed},
		ack:    ack,
	}
}

// emit assigns the next seq, hands persistable events to the persistence lane
// and fans the event out to the members.
func (r *Room) emit(evt domain.Event) (domain.Event, <-chan bool, []domain.ConnectionID) {
	r.seq++
	r.headSeq.Store(r.seq)
	evt.Seq = r.seq
	evt.RoomID = r.ID
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	var ack <-chan bool
	if r.policy.Persistable(evt.Type) {
		record := domain.PersistedRecord{RoomID: r.ID, Seq: evt.Seq, PrevSeq: r.lastPersisted, Event: evt}
		r.lastPersisted = evt.Seq
		ack = r.persister.enqueue(record)
	}
	return evt, ack, r.fanOut(evt)
}

func (r *Room) fanOut(evt domain.Event) []domain.ConnectionID {
	var failed []*Connection
	for _, member := range r.members {
		if member.ID == evt.Sender && !r.policy.EchoToSender {
			continue
		}
		if !member.offer(evt) {
			failed = append(failed, member)
		}
	}
	ids := make([]domain.ConnectionID, 0, len(failed))
	for _, member := range failed {
		ids = append(ids, member.ID)
		r.log.Warn("Member outbox unavailable, evicting", "conn_id", member.ID, "seq", evt.Seq)
		r.remove(member.ID, fmt.Errorf("%w: outbox full", errors.ErrConnectionLost))
	}
	return ids
}

// remove drops a member and announces the departure when it was the last
// connection of the user. A non-nil cause also fails the connection.
func (r *Room) remove(id domain.ConnectionID, cause error) {
	idx := lo.IndexOf(lo.Map(r.members, func(m *Connection, _ int) domain.ConnectionID { return m.ID }), id)
	if idx < 0 {
		return
	}
	member := r.members[idx]
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	r.memberCount.Store(int32(len(r.members)))
	r.touch()
	if cause != nil {
		member.fail(cause)
	}
	if payload, changed := r.presence.Left(r.ID, member.UserID); changed {
		r.emit(domain.Event{Type: domain.EventPresence, Payload: payload})
	}
}

func (r *Room) touch() {
	r.lastActivity = time.Now().UTC()
	r.activityNano.Store(r.lastActivity.UnixNano())
}

func (r *Room) takeLeaves() []leaveRequest {
	r.leaveMu.Lock()
	defer r.leaveMu.Unlock()
	pending := r.pendingLeaves
	r.pendingLeaves = nil
	return pending
}

func (r *Room) applyLeaves(pending []leaveRequest) {
	for _, leave := range pending {
		r.remove(leave.id, nil)
		close(leave.reply)
	}
}

// shutdown applies the leaves accepted so far before closing the room, so a
// caller never waits on a leave that will not run.
func (r *Room) shutdown() {
	r.closeOnce.Do(func() {
		r.leaveMu.Lock()
		pending := r.pendingLeaves
		r.pendingLeaves = nil
		r.applyLeaves(pending)
		close(r.done)
		r.leaveMu.Unlock()
		r.persister.shutdown()
	})
}

func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// submit blocks until the command is queued or the room is gone.
func (r *Room) submit(ctx context.Context, cmd roomCommand) error {
	if r.Closed() {
		return fmt.Errorf("%w: %s", errors.ErrRoomClosed, r.ID)
	}
	select {
	case r.commands <- cmd:
		return nil
	case <-r.done:
		return fmt.Errorf("%w: %s", errors.ErrRoomClosed, r.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySubmit queues the command without blocking: a full queue is an overload.
func (r *Room) trySubmit(cmd roomCommand) error {
	if r.Closed() {
		return fmt.Errorf("%w: %s", errors.ErrRoomClosed, r.ID)
	}
	select {
	case r.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: room %s queue is full (%d)", errors.ErrOverload, r.ID, cap(r.commands))
	}
}

func await[T any](ctx context.Context, r *Room, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		// The loop may have answered right before shutting down
		select {
		case v := <-reply:
			return v, nil
		default:
		}
		return zero, fmt.Errorf("%w: %s", errors.ErrRoomClosed, r.ID)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// join is refused with ErrOverload when the queue is full, like publish.
func (r *Room) join(ctx context.Context, conn *Connection) (joinPoint, error) {
	reply := make(chan joinReply, 1)
	if err := r.trySubmit(joinCommand{conn: conn, reply: reply}); err != nil {
		return joinPoint{}, err
	}
	res, err := await[joinReply](ctx, r, reply)
	if err != nil {
		return joinPoint{}, err
	}
	return res.point, res.err
}

// leave is never refused while the room lives and returns once the loop has
// removed the member. ErrRoomClosed means there is no member left to remove.
func (r *Room) leave(ctx context.Context, id domain.ConnectionID) error {
	reply := make(chan struct{})
	r.leaveMu.Lock()
	if r.Closed() {
		r.leaveMu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrRoomClosed, r.ID)
	}
	r.pendingLeaves = append(r.pendingLeaves, leaveRequest{id: id, reply: reply})
	r.leaveMu.Unlock()

	select {
	case r.leaveSignal <- struct{}{}:
	default:
	}
	_, err := await[struct{}](ctx, r, reply)
	return err
}

func (r *Room) publish(ctx context.Context, evt domain.Event) (domain.DeliveryResult, <-chan bool, error) {
	reply := make(chan publishReply, 1)
	if err := r.trySubmit(publishCommand{evt: evt, reply: reply}); err != nil {
		return domain.DeliveryResult{}, nil, err
	}
	res, err := await[publishReply](ctx, r, reply)
	if err != nil {
		return domain.DeliveryResult{}, nil, err
	}
	return res.result, res.ack, res.err
}

func (r *Room) memberIDs(ctx context.Context) ([]domain.ConnectionID, error) {
	reply := make(chan []domain.ConnectionID, 1)
	if err := r.submit(ctx, membersCommand{reply: reply}); err != nil {
		return nil, err
	}
	return await[[]domain.ConnectionID](ctx, r, reply)
}

// retire asks the loop to shut the room down if it is idle. A full queue means
// the room is busy and is left alone.
func (r *Room) retire(ctx context.Context, now time.Time) bool {
	reply := make(chan bool, 1)
	if err := r.trySubmit(retireCommand{now: now, reply: reply}); err != nil {
		return r.Closed()
	}
	retired, err := await[bool](ctx, r, reply)
	if err != nil {
		return r.Closed()
	}
	return retired
}

func (r *Room) Stats() contract.RoomStats {
	return contract.RoomStats{
		Key:             r.Key,
		ID:              r.ID,
		Members:         int(r.memberCount.Load()),
		QueueLength:     len(r.commands),
		QueueCapacity:   cap(r.commands),
		PersistLength:   r.persister.pending(),
		PersistCapacity: cap(r.persister.jobs),
		LastActivity:    time.Unix(0, r.activityNano.Load()).UTC(),
		LastAssignedSeq: r.headSeq.Load(),
	}
}
