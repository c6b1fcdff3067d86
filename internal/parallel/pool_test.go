package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	const numTasks = 100

	wg.Add(numTasks)
	for range numTasks {
		if !pool.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}) {
			t.Fatal("Submit() = false on running pool")
		}
	}
	wg.Wait()

	if counter.Load() != numTasks {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_Submit_Nil(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	if pool.Submit(nil) {
		t.Error("Submit(nil) = true, want false")
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	ran := false
	if pool.Submit(func() { ran = true }) {
		t.Error("Submit() after Close = true, want false")
	}
	if ran {
		t.Error("work should not run after Close")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}

func TestWorkerPool_CloseRunsPendingWork(t *testing.T) {
	pool := NewWorkerPool(1)

	var counter atomic.Int64
	block := make(chan struct{})
	pool.Submit(func() { <-block })
	for range 5 {
		pool.Submit(func() { counter.Add(1) })
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block)
	}()
	pool.Close()

	if counter.Load() != 5 {
		t.Errorf("counter = %d, want 5 (queued work must run before Close returns)", counter.Load())
	}
	if pool.QueuedWork() != 0 {
		t.Errorf("QueuedWork() = %d, want 0", pool.QueuedWork())
	}
}

// =============================================================================
// Stealing Tests
// =============================================================================

func TestWorkerPool_WorkStealing(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	// Occupy one worker; the rest of the work must still complete.
	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
		<-block
	})

	var counter atomic.Int64
	const numTasks = 20
	wg.Add(numTasks)
	for range numTasks {
		pool.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
	}

	deadline := time.After(2 * time.Second)
	for counter.Load() < numTasks {
		select {
		case <-deadline:
			t.Fatalf("counter = %d, want %d while one worker is blocked", counter.Load(), numTasks)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(block)
	wg.Wait()
}
