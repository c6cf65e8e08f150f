// internal/worker/pool_test.go
package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsSubmittedJobs(t *testing.T) {
	pool := NewPool(2, 8)

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		ok := pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
		if !ok {
			wg.Done()
			t.Errorf("submit %d rejected", i)
		}
	}
	wg.Wait()

	if got := atomic.LoadInt64(&count); got != 8 {
		t.Errorf("got %d executed jobs, want 8", got)
	}
}

func TestPool_RejectsWhenQueueFull(t *testing.T) {
	pool := NewPool(1, 1)

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func() {
		close(started)
		<-block
	})
	<-started

	// One slot in the queue, then it is full.
	if !pool.Submit(func() {}) {
		t.Error("queued submit should succeed")
	}
	if pool.Submit(func() {}) {
		t.Error("submit should fail when queue is full")
	}

	close(block)
	pool.Shutdown()
}

func TestPool_RejectsAfterShutdown(t *testing.T) {
	pool := NewPool(2, 4)
	pool.Shutdown()

	if pool.Submit(func() {}) {
		t.Error("submit should fail after shutdown")
	}

	// Repeated shutdown is a no-op.
	pool.Shutdown()
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	pool := NewPool(1, 8)

	var count int64
	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&count, 1)
		})
	}
	pool.Shutdown()

	if got := atomic.LoadInt64(&count); got != 5 {
		t.Errorf("got %d executed jobs after shutdown, want 5", got)
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	pool := NewPool(1, 2)

	done := make(chan struct{})
	pool.Submit(func() { panic("boom") })
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panicking job")
	}
	pool.Shutdown()
}

func TestPool_ClampsInvalidSizes(t *testing.T) {
	pool := NewPool(0, -1)
	if pool.Workers() != 1 {
		t.Errorf("got workers=%d, want 1", pool.Workers())
	}

	done := make(chan struct{})
	started := make(chan struct{})
	go func() {
		// Zero queue capacity: Submit only succeeds once a worker
		// is ready to take the job directly.
		for !pool.Submit(func() { close(done) }) {
			time.Sleep(time.Millisecond)
		}
		close(started)
	}()
	<-started
	<-done
	pool.Shutdown()
}
