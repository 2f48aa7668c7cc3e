package runtime

import (
	"context"
	"fmt"
	"live-hub/contract"
	"live-hub/domain"
	"log/slog"
	"time"
)

// pruneEvery is the number of sequence numbers between two history prunes.
const pruneEvery = 64

type persistJob struct {
	record  domain.PersistedRecord
	ack     chan bool
	barrier chan struct{}
}

// Persister is the persistence lane of one room. Appends run in seq order on
// their own goroutine so that a slow store never stalls the room loop.
type Persister struct {
	roomID       domain.RoomID
	store        contract.EventStore
	jobs         chan persistJob
	stop         chan struct{}
	maxAttempts  int
	backoff      time.Duration
	historyLimit int
	log          *slog.Logger
}

func newPersister(roomID domain.RoomID, store contract.EventStore, cfg RoomConfig, log *slog.Logger) *Persister {
	maxAttempts := cfg.PersistMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Persister{
		roomID:       roomID,
		store:        store,
		jobs:         make(chan persistJob, cfg.PersistQueueSize),
		stop:         make(chan struct{}),
		maxAttempts:  maxAttempts,
		backoff:      cfg.PersistBackoff,
		historyLimit: cfg.HistoryLimit,
		log:          log,
	}
}

// enqueue never blocks: a full lane acknowledges false right away.
func (p *Persister) enqueue(record domain.PersistedRecord) <-chan bool {
	ack := make(chan bool, 1)
	select {
	case p.jobs <- persistJob{record: record, ack: ack}:
	default:
		p.log.Warn("Persistence lane full, event degraded", "seq", record.Seq, "capacity", cap(p.jobs))
		ack <- false
	}
	return ack
}

// flush waits until every job queued before the call has been handled.
func (p *Persister) flush(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case p.jobs <- persistJob{barrier: barrier}:
	case <-p.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-p.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persister) shutdown() {
	close(p.stop)
}

func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain(func(job persistJob) { job.ack <- false })
			return ctx.Err()
		case <-p.stop:
			p.drain(func(job persistJob) { job.ack <- p.append(ctx, job.record) })
			return nil
		case job := <-p.jobs:
			p.handle(ctx, job)
		}
	}
}

func (p *Persister) handle(ctx context.Context, job persistJob) {
	if job.barrier != nil {
		close(job.barrier)
		return
	}
	ok := p.append(ctx, job.record)
	job.ack <- ok
	if ok && p.historyLimit > 0 && job.record.Seq%pruneEvery == 0 {
		if err := guard(func() error { return p.store.Prune(ctx, p.roomID, p.historyLimit) }); err != nil {
			p.log.Warn("History prune failed", "error", err)
		}
	}
}

func (p *Persister) drain(handle func(job persistJob)) {
	for {
		select {
		case job := <-p.jobs:
			if job.barrier != nil {
				close(job.barrier)
				continue
			}
			handle(job)
		default:
			return
		}
	}
}

// append retries with an exponential backoff and reports whether the record was stored.
func (p *Persister) append(ctx context.Context, record domain.PersistedRecord) bool {
	delay := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := guard(func() error { return p.store.Append(ctx, record) })
		if err == nil {
			return true
		}
		p.log.Warn("Append failed", "seq", record.Seq, "attempt", attempt, "error", err)
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
	}
	p.log.Error("Event not persisted, giving up", "seq", record.Seq, "attempts", p.maxAttempts)
	return false
}

// guard turns a panicking store call into an error, so the job taken off the
// lane is still acknowledged and its publisher is not left waiting.
func guard(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store panic: %v", r)
		}
	}()
	return call()
}

func (p *Persister) pending() int {
	return len(p.jobs)
}
