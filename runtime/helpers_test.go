package runtime

import (
	"context"
	"errors"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/repositories"
	"live-hub/runtime/workers"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// fakeTransport records what the hub writes. With hang set, Send blocks
// until its context is done, like a client that stopped reading.
type fakeTransport struct {
	received chan domain.Event
	hang     atomic.Bool
	closed   atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{received: make(chan domain.Event, 256)}
}

func (f *fakeTransport) Send(ctx context.Context, evt domain.Event) error {
	if f.hang.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.closed.Load() {
		return errors.New("transport closed")
	}
	f.received <- evt
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeTransport) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case evt := <-f.received:
		return evt
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no event received")
		return domain.Event{}
	}
}

// nextOf skips events of other types.
func (f *fakeTransport) nextOf(t *testing.T, eventType domain.EventType) domain.Event {
	t.Helper()
	for {
		if evt := f.next(t); evt.Type == eventType {
			return evt
		}
	}
}

func (f *fakeTransport) quiet(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case evt := <-f.received:
		require.FailNow(t, "unexpected event", "%+v", evt)
	case <-time.After(wait):
	}
}

// flakyStore fails every Append while failing is set.
type flakyStore struct {
	contract.EventStore
	failing atomic.Bool
	mu      sync.Mutex
	appends int
}

func (s *flakyStore) Append(ctx context.Context, record domain.PersistedRecord) error {
	s.mu.Lock()
	s.appends++
	s.mu.Unlock()
	if s.failing.Load() {
		return errors.New("disk unavailable")
	}
	return s.EventStore.Append(ctx, record)
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func testConfig() RoomConfig {
	return RoomConfig{
		QueueSize:          64,
		PersistQueueSize:   64,
		OutboxSize:         64,
		IdleTimeout:        time.Minute,
		WriteTimeout:       200 * time.Millisecond,
		PersistMaxAttempts: 3,
		PersistBackoff:     time.Millisecond,
		Policy:             DispatchPolicy{PersistStrokes: true, MaxTextLength: 500},
	}
}

func badgerStore(t *testing.T) repositories.EventRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repositories.NewEventRepository(db, testLogger())
}

// startOrchestrator runs a hub until the end of the test.
func startOrchestrator(t *testing.T, store contract.EventStore, cfg RoomConfig) *Orchestrator {
	t.Helper()
	log := testLogger()
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log), store, cfg, time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		orchestrator.Start(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return orchestrator
}

func join(t *testing.T, o *Orchestrator, key domain.RoomKey, user domain.UserID, resume Resume) (*Connection, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	_, err := o.OpenRoom(context.Background(), key)
	require.NoError(t, err)
	conn, err := o.Join(context.Background(), transport, key, user, resume)
	require.NoError(t, err)
	greeting := transport.next(t)
	require.Equal(t, domain.EventJoined, greeting.Type)
	require.Equal(t, conn.RoomID, greeting.RoomID)
	require.Zero(t, greeting.Seq)
	return conn, transport
}

func say(t *testing.T, o *Orchestrator, conn *Connection, text string) domain.DeliveryResult {
	t.Helper()
	result, err := o.Publish(context.Background(), conn.ID, domain.MessagePayload{Text: text})
	require.NoError(t, err)
	return result
}
