//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"live-hub/domain"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Spawn(worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport is the write side of one live client session.
// Send must honor ctx cancellation; Close must be idempotent.
type Transport interface {
	Send(ctx context.Context, evt domain.Event) error
	Close() error
}

// EventStore is the persistence adapter. Nothing but the persistence lane
// and the join backfill reach the underlying store.
type EventStore interface {
	Append(ctx context.Context, record domain.PersistedRecord) error
	Fetch(ctx context.Context, roomID domain.RoomID, sinceSeq uint64) ([]domain.PersistedRecord, error)
	Prune(ctx context.Context, roomID domain.RoomID, keepLast int) error
	RecordIncarnation(ctx context.Context, incarnation domain.RoomIncarnation) error
	Incarnations(ctx context.Context, key domain.RoomKey) ([]domain.RoomIncarnation, error)
}

// Authorizer approves room membership, e.g. an enrollment or group membership check.
type Authorizer interface {
	Authorize(ctx context.Context, identity domain.Identity, key domain.RoomKey) error
}

// IdentityVerifier turns a bearer credential into a verified identity.
type IdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// RoomSweeper destroys rooms idle for longer than their timeout.
type RoomSweeper interface {
	Sweep(ctx context.Context, now time.Time) int
}

type RoomStats struct {
	Key             domain.RoomKey
	ID              domain.RoomID
	Members         int
	QueueLength     int
	QueueCapacity   int
	PersistLength   int
	PersistCapacity int
	LastActivity    time.Time
	LastAssignedSeq uint64
}

// StatsProvider exposes a point-in-time view of every live room.
type StatsProvider interface {
	RoomStats() []RoomStats
	ConnectionCount() int
}
