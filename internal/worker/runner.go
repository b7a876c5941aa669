package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/logger"
)

// ErrStopped is returned by Launch once the runner has been stopped.
var ErrStopped = errors.New("runner stopped")

// Driver advances one job until it completes or ctx is cancelled.
type Driver interface {
	Drive(ctx context.Context, jobID int64) error
}

// LocalRunner runs every job driver on its own goroutine. Each driver has
// its own cancel func so Stop can abandon the ones still running.
type LocalRunner struct {
	driver Driver

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	cancels map[int64]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func NewLocalRunner(driver Driver) *LocalRunner {
	base, stop := context.WithCancel(context.Background())
	return &LocalRunner{
		driver:  driver,
		base:    base,
		stop:    stop,
		cancels: make(map[int64]context.CancelFunc),
	}
}

// Launch starts the driver for jobID. The request context only carries
// values: a driver outlives the request that started it.
func (r *LocalRunner) Launch(ctx context.Context, jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}

	jobCtx, cancel := context.WithCancel(r.base)
	r.cancels[jobID] = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.forget(jobID)
		if err := r.driver.Drive(jobCtx, jobID); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Job driver failed", zap.Int64("jobId", jobID), zap.Error(err))
		}
	}()
	return nil
}

// Running returns the number of drivers that have not returned yet.
func (r *LocalRunner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// Stop cancels every running driver and waits for them to return, or for
// ctx to expire.
func (r *LocalRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *LocalRunner) forget(jobID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[jobID]; ok {
		cancel()
		delete(r.cancels, jobID)
	}
}
