package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// ErrPoolShutdown is returned when a run is dispatched to a shut-down pool.
var ErrPoolShutdown = errors.New("run pool is shut down")

// runTask is one scheduled graph execution queued for dispatch. The ids
// identify the run in logs; Execute carries the actual work and reports
// how the run ended.
type runTask struct {
	JobID   string
	GraphID string
	Execute func(ctx context.Context) (schema.RunStatus, error)
}

// PoolStats counts scheduled-run outcomes since startup. A run counts
// as Failed when it errored, panicked, or finished with a failed status.
type PoolStats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Panics    int `json:"panics"`
}

// runPool bounds how many scheduled graph runs execute at once.
// Dispatch blocks while all slots are taken so a tick with many due
// jobs cannot flood the engine.
type runPool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	stats  PoolStats
}

func newRunPool(size int, logger *slog.Logger) *runPool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &runPool{
		slots:  make(chan struct{}, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Dispatch hands a run to the pool. It blocks for a free slot,
// respecting context cancellation while waiting, and returns
// ErrPoolShutdown once the pool is stopping.
func (p *runPool) Dispatch(ctx context.Context, task runTask) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// Shutdown may have raced us for the slot. wg.Add must happen under
	// the lock or Shutdown's wg.Wait can miss this run.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.stats.Active++
	p.mu.Unlock()

	go p.execute(ctx, task)
	return nil
}

func (p *runPool) execute(ctx context.Context, task runTask) {
	var status schema.RunStatus
	var err error

	defer func() {
		r := recover()

		p.mu.Lock()
		p.stats.Active--
		switch {
		case r != nil:
			p.stats.Panics++
			p.stats.Failed++
		case err != nil || status == schema.RunStatusFailed:
			p.stats.Failed++
		default:
			p.stats.Completed++
		}
		p.mu.Unlock()

		if r != nil {
			p.logger.Error("scheduled run panicked",
				slog.String("job_id", task.JobID),
				slog.String("graph_id", task.GraphID),
				slog.Any("panic", r))
		}

		<-p.slots
		p.wg.Done()
	}()

	status, err = task.Execute(ctx)
}

// Wait blocks until all dispatched runs finish.
func (p *runPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops the pool: new dispatches are rejected and in-flight
// runs are drained.
func (p *runPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the outcome counters.
func (p *runPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
