// internal/worker/pool.go
package worker

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool runs jobs on a fixed number of worker goroutines with a
// bounded queue in front of them.
type Pool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	workers int
}

// NewPool creates a pool with the given number of workers and queue
// capacity and starts the workers immediately.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		jobs:    make(chan func(), queueSize),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker recovered from panic",
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	job()
}

// Submit enqueues a job for execution. It returns false when the
// queue is full or the pool has been shut down.
func (p *Pool) Submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting new jobs and waits for queued and running
// jobs to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.jobs)
}
