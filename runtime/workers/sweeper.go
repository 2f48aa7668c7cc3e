package workers

import (
	"context"
	"live-hub/contract"
	"log/slog"
	"time"
)

// SweeperWorker periodically asks the room manager to destroy idle rooms.
type SweeperWorker struct {
	log      *slog.Logger
	sweeper  contract.RoomSweeper
	interval time.Duration
}

func NewSweeperWorker(sweeper contract.RoomSweeper, interval time.Duration, log *slog.Logger) *SweeperWorker {
	return &SweeperWorker{log: log, sweeper: sweeper, interval: interval}
}

func (w SweeperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping room sweep")
			return nil
		case now := <-ticker.C:
			if destroyed := w.sweeper.Sweep(ctx, now); destroyed > 0 {
				w.log.Info("Idle rooms destroyed", "count", destroyed)
			}
		}
	}
}
