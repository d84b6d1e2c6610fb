package sync

import (
	"testing"
	"time"

	"github.com/go-simkernel/simkernel/sched"
)

func TestRWMutexMultipleReaders(t *testing.T) {
	sc := newTestScheduler()
	rw := NewRWMutex("rw", sc)
	a := sched.NewThread("a", 0, 1, 2)
	b := sched.NewThread("b", 0, 2, 2)

	rw.RLock(a)
	acquired := make(chan struct{})
	go func() {
		rw.RLock(b)
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader never acquired RLock alongside the first")
	}

	rw.RUnlock(a)
	rw.RUnlock(b)
}

func TestRWMutexWriterExcludesReaders(t *testing.T) {
	sc := newTestScheduler()
	rw := NewRWMutex("rw", sc)
	w := sched.NewThread("w", 0, 1, 2)
	r := sched.NewThread("r", 0, 2, 2)

	rw.Lock(w)

	acquired := make(chan struct{})
	go func() {
		rw.RLock(r)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired RLock while writer held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	rw.Unlock(w)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired RLock after writer released")
	}
	rw.RUnlock(r)
}

func TestRWMutexWriterWaitsForReaders(t *testing.T) {
	sc := newTestScheduler()
	rw := NewRWMutex("rw", sc)
	r := sched.NewThread("r", 0, 1, 2)
	w := sched.NewThread("w", 0, 2, 2)

	rw.RLock(r)

	acquired := make(chan struct{})
	go func() {
		rw.Lock(w)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired the lock while a reader still held it")
	case <-time.After(20 * time.Millisecond):
	}

	rw.RUnlock(r)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the lock after the reader released")
	}
	rw.Unlock(w)
}

// TestRWMutexWriterReadRecursion exercises the documented exception: a
// thread already holding the write lock may call RLock without blocking
// on itself.
func TestRWMutexWriterReadRecursion(t *testing.T) {
	sc := newTestScheduler()
	rw := NewRWMutex("rw", sc)
	w := sched.NewThread("w", 0, 1, 2)

	rw.Lock(w)

	done := make(chan struct{})
	go func() {
		rw.RLock(w)
		rw.RUnlock(w)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer's own RLock deadlocked against its held write lock")
	}

	rw.Unlock(w)
}
