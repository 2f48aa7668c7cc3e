package workers

import (
	"context"
	"live-hub/mocks"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	var calls atomic.Int32
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			calls.Add(1)
			panic("boom")
		}).
		AnyTimes()

	sup := NewSupervisor(log)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(ctx)
		close(done)
	}()

	// Waiting for panics and restarts
	req.Eventually(func() bool { return calls.Load() >= 2 }, 900*time.Millisecond, 10*time.Millisecond)
	cancel()
	<-done
}

func TestSupervisor_Does_Not_Restart_On_Success(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker running only once
	finished := make(chan struct{})
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			close(finished)
			return nil
		}).
		Times(1)

	sup := NewSupervisor(log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(ctx)
		close(done)
	}()

	select {
	case <-finished:
	case <-time.After(500 * time.Millisecond):
		req.Fail("worker never ran")
	}
	// Then the supervisor keeps running without restarting the worker
	time.Sleep(3 * waitTimeBeforeRestart / 2)

	// When the supervisor is stopped
	sup.Stop()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped")
	}
	cancel()
}

func TestSupervisor_Spawn_While_Running(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sup := NewSupervisor(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	// Given a worker blocking until the supervisor stops
	started := make(chan struct{})
	stopped := make(chan struct{})
	workerMock := mocks.NewMockWorker(ctrl)
	workerMock.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}).Times(1)

	// When it is spawned after Run
	sup.Spawn(workerMock)

	// Then it runs, and is waited for on shutdown
	select {
	case <-started:
	case <-time.After(time.Second):
		req.Fail("spawned worker never started")
	}
	cancel()
	<-done
	select {
	case <-stopped:
	default:
		req.Fail("Run returned before the worker stopped")
	}
}

func TestSupervisor_Spawn_Before_Run_Is_Deferred(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sup := NewSupervisor(slog.Default())

	started := make(chan struct{})
	workerMock := mocks.NewMockWorker(ctrl)
	workerMock.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		close(started)
		return nil
	}).Times(1)
	sup.Spawn(workerMock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		req.Fail("pending worker never started")
	}
	cancel()
	<-done
}
