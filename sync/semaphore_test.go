package sync

import (
	"testing"
	"time"

	"github.com/go-simkernel/simkernel/sched"
)

func newTestScheduler() *sched.Scheduler {
	main := sched.NewThread("main", 0, 0, 2)
	return sched.NewScheduler(4, main)
}

func TestSemaphoreBasic(t *testing.T) {
	sc := newTestScheduler()
	sem := NewSemaphore("test", 1, sc)
	caller := sched.NewThread("t0", 0, 1, 2)

	sem.P(caller)
	if sem.Value() != 0 {
		t.Fatalf("value = %d, want 0", sem.Value())
	}
	sem.V()
	if sem.Value() != 1 {
		t.Fatalf("value = %d, want 1", sem.Value())
	}
}

func TestSemaphoreBlocksUntilSignaled(t *testing.T) {
	sc := newTestScheduler()
	sem := NewSemaphore("test", 0, sc)
	waiter := sched.NewThread("waiter", 0, 1, 2)

	done := make(chan struct{})
	go func() {
		sem.P(waiter)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("P returned before V was called")
	case <-time.After(20 * time.Millisecond):
	}

	sem.V()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("P never returned after V")
	}
}

func TestSemaphoreFIFOOrder(t *testing.T) {
	sc := newTestScheduler()
	sem := NewSemaphore("test", 0, sc)

	const n = 5
	order := make(chan int, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		i := i
		waiter := sched.NewThread("w", 0, i+1, 2)
		go func() {
			<-start
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			sem.P(waiter)
			order <- i
		}()
	}
	close(start)
	// give every goroutine a chance to enqueue in order before releasing.
	time.Sleep(50 * time.Millisecond)

	// One V at a time, each followed by the wakeup it caused, so the order
	// observed is the semaphore's wake order rather than the order in which
	// several already-woken goroutines happen to run.
	got := make([]int, n)
	for i := 0; i < n; i++ {
		sem.V()
		got[i] = <-order
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("FIFO order violated: got %v, want 0..%d in order", got, n-1)
		}
	}
}
