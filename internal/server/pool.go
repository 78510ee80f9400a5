package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// WorkerPool runs session workers with a cap on how many run at once.
// Submitted work waits for a free slot; Stop cancels work still waiting.
type WorkerPool struct {
	sem     *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool running at most size workers.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit queues task. If the pool stops before task starts, onCancel runs
// instead. Submitting to a stopped pool returns ErrServerClosed.
func (p *WorkerPool) Submit(task func(), onCancel func()) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrServerClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			if onCancel != nil {
				onCancel()
			}
			return
		}
		defer p.sem.Release(1)

		// Acquire can win against a cancellation that already happened.
		if p.ctx.Err() != nil {
			if onCancel != nil {
				onCancel()
			}
			return
		}
		task()
	}()
	return nil
}

// Stop cancels queued work and waits for running workers to return, or
// until timeout.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
