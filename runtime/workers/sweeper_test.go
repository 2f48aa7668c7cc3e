package workers

import (
	"context"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSweeperWorker_Sweeps_On_Each_Tick(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sweeper := mocks.NewMockRoomSweeper(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	ticks := make(chan time.Time, 2)
	sweeper.EXPECT().Sweep(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, now time.Time) int {
			select {
			case ticks <- now:
			default:
			}
			return 1
		}).MinTimes(2)

	worker := NewSweeperWorker(sweeper, 10*time.Millisecond, slog.Default())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			req.Fail("no sweep")
		}
	}
	cancel()
	req.NoError(<-done)
}

func TestStatsWorker_Reports_Saturated_Rooms(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockStatsProvider(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	reported := make(chan struct{}, 1)
	provider.EXPECT().RoomStats().Return([]contract.RoomStats{
		{Key: domain.NewRoomKey("course1", domain.KindChat), ID: "course1-chat#1", Members: 3, QueueLength: 9, QueueCapacity: 10},
	}).MinTimes(1)
	provider.EXPECT().ConnectionCount().DoAndReturn(func() int {
		select {
		case reported <- struct{}{}:
		default:
		}
		return 3
	}).MinTimes(1)

	worker := NewStatsWorker(provider, 10*time.Millisecond, slog.Default())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	select {
	case <-reported:
	case <-time.After(time.Second):
		req.Fail("no report")
	}
	cancel()
	req.NoError(<-done)
	req.True(saturated(9, 10))
	req.False(saturated(1, 10))
	req.False(saturated(0, 0))
}
