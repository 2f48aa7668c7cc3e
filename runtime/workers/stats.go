package workers

import (
	"context"
	"live-hub/contract"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// saturationThreshold is the queue fill ratio above which a room is reported.
const saturationThreshold = 0.8

// StatsWorker periodically logs the process footprint and warns about rooms
// whose command queue or persistence lane is close to full. Reading len and
// cap of a channel never blocks, so sampling does not disturb the rooms.
type StatsWorker struct {
	log      *slog.Logger
	provider contract.StatsProvider
	interval time.Duration
	self     *process.Process
}

func NewStatsWorker(provider contract.StatsProvider, interval time.Duration, log *slog.Logger) *StatsWorker {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("Process stats unavailable", "error", err)
	}
	return &StatsWorker{log: log, provider: provider, interval: interval, self: self}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats")
			return nil
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *StatsWorker) report() {
	rooms := w.provider.RoomStats()
	members := 0
	for _, room := range rooms {
		members += room.Members
		if saturated(room.QueueLength, room.QueueCapacity) || saturated(room.PersistLength, room.PersistCapacity) {
			w.log.Warn("Room close to saturation", "room_id", room.ID,
				"queue", room.QueueLength, "queue_cap", room.QueueCapacity,
				"persist", room.PersistLength, "persist_cap", room.PersistCapacity)
		}
	}

	attrs := []any{"rooms", len(rooms), "members", members, "connections", w.provider.ConnectionCount()}
	if w.self != nil {
		if cpu, err := w.self.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		}
		if mem, err := w.self.MemoryInfo(); err == nil {
			attrs = append(attrs, "rss_bytes", mem.RSS)
		}
	}
	w.log.Info("Hub stats", attrs...)
}

func saturated(length, capacity int) bool {
	return capacity > 0 && float64(length)/float64(capacity) >= saturationThreshold
}
