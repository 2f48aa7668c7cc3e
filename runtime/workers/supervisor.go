package workers

import (
	"context"
	"fmt"
	"live-hub/contract"
	"live-hub/errors"
	"log/slog"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

// Supervisor Own a context and a Cancel function
// Run each worker in a goroutine
// Check panics and errors
// Restart workers automatically
// Accept new workers while running (one loop and one persistence lane per room)
// Shutdown properly if parent context is canceled
// Wait for the end of all goroutines via WaitGroup
type Supervisor struct {
	mu      sync.Mutex
	Cancel  context.CancelFunc // To stop the context
	wg      *sync.WaitGroup    // Wait for the end of goroutines
	log     *slog.Logger
	workers []contract.Worker
	ctx     context.Context // Set once Run started
	stopped bool
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log}
}

// Run starts every added worker and blocks until the parent ctx is canceled
// or Stop is called, then waits for all supervised goroutines to return.
func (s *Supervisor) Run(ctx context.Context) {
	// If the parent (main) cancels, we Cancel.
	// If WE call s.Cancel(), only our children Cancel.
	supervisedCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.Cancel = cancel
	s.ctx = supervisedCtx
	pending := s.workers
	s.workers = nil
	for _, worker := range pending {
		s.Start(supervisedCtx, worker)
	}
	s.mu.Unlock()
	defer cancel()

	<-supervisedCtx.Done()

	// No Start may race with Wait from here
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		for _, w := range worker {
			s.spawnLocked(w)
		}
		return s
	}
	s.workers = append(s.workers, worker...)
	return s
}

// Spawn runs the worker under supervision, now if the supervisor is already
// running, otherwise as soon as Run is called.
func (s *Supervisor) Spawn(worker contract.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		s.workers = append(s.workers, worker)
		return
	}
	s.spawnLocked(worker)
}

func (s *Supervisor) spawnLocked(worker contract.Worker) {
	if s.stopped {
		s.log.Debug("Supervisor stopped, worker not started", "name", contract.GetWorkerName(worker))
		return
	}
	s.Start(s.ctx, worker)
}

// Start runs a worker under supervision.
// The worker is executed in a dedicated goroutine. If its Run method panics
// or returns an error, the supervisor restarts it after a short delay.
// A failure in one worker must not stop the supervisor itself.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Debug(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				// Restarted after a crash
				// Not restarting the entire goroutine
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart !
				s.log.Debug(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Debug("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				// Context canceled: priority stop.
				return
			case <-time.After(waitTimeBeforeRestart):
			}
		}
	}()
}

// Stop Cancel all goroutines listening channel for Ctx.Done
// Supervisor will wait for all goroutines to finish
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Cancel != nil {
		s.Cancel()
	}
}
