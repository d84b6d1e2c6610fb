package sync

import "github.com/go-simkernel/simkernel/sched"

// rwmutexMaxReaders mirrors stdlib sync.RWMutex's rwmutexMaxReaders: large
// enough that it is never reached in practice, used as the offset a
// pending writer subtracts from readerCount so that readers arriving
// during the wait see a negative count and block.
const rwmutexMaxReaders = 1 << 30

// RWMutex is a readers/writer mutex using the same counter encoding as
// Go's stdlib sync.RWMutex, plus one exception stdlib doesn't provide: a
// thread already holding the write side may recursively call RLock
// without incrementing readerCount, checked by testing ownership of
// writerMutex.
type RWMutex struct {
	writerMutex *Lock // held for the duration of a write lock; also used to detect writer read-recursion
	atomicLock  *Lock // guards readerCount/readerWait
	readerSem   *Semaphore
	writerSem   *Semaphore

	readerCount int
	readerWait  int
}

// NewRWMutex builds an unlocked RWMutex.
func NewRWMutex(name string, sc sched.Contract) *RWMutex {
	return &RWMutex{
		writerMutex: NewLock(name+".writer", sc),
		atomicLock:  NewLock(name+".atomic", sc),
		readerSem:   NewSemaphore(name+".readerSem", 0, sc),
		writerSem:   NewSemaphore(name+".writerSem", 0, sc),
	}
}

// RLock acquires the mutex for reading. A thread already holding the
// write lock may call RLock without blocking and without incrementing
// readerCount.
func (rw *RWMutex) RLock(caller *sched.Thread) {
	if rw.writerMutex.IsHeldBy(caller) {
		return
	}
	rw.atomicLock.Acquire(caller)
	rw.readerCount++
	rc := rw.readerCount
	rw.atomicLock.Release(caller)
	if rc < 0 {
		// A writer is pending (readerCount was offset negative by Lock).
		rw.readerSem.P(caller)
	}
}

// RUnlock releases a read lock acquired via RLock.
func (rw *RWMutex) RUnlock(caller *sched.Thread) {
	if rw.writerMutex.IsHeldBy(caller) {
		return
	}
	rw.atomicLock.Acquire(caller)
	rw.readerCount--
	rc := rw.readerCount
	rw.atomicLock.Release(caller)
	if rc < 0 {
		rw.atomicLock.Acquire(caller)
		rw.readerWait--
		done := rw.readerWait == 0
		rw.atomicLock.Release(caller)
		if done {
			rw.writerSem.V()
		}
	}
}

// Lock acquires the mutex for writing, blocking out new readers
// immediately and waiting for any already-active readers to drain.
func (rw *RWMutex) Lock(caller *sched.Thread) {
	rw.writerMutex.Acquire(caller)

	rw.atomicLock.Acquire(caller)
	r := rw.readerCount
	rw.readerCount -= rwmutexMaxReaders
	rw.atomicLock.Release(caller)

	if r != 0 {
		rw.atomicLock.Acquire(caller)
		rw.readerWait += r
		w := rw.readerWait
		rw.atomicLock.Release(caller)
		if w != 0 {
			rw.writerSem.P(caller)
		}
	}
}

// Unlock releases a write lock acquired via Lock, waking every reader that
// arrived during the hold.
func (rw *RWMutex) Unlock(caller *sched.Thread) {
	rw.atomicLock.Acquire(caller)
	rw.readerCount += rwmutexMaxReaders
	r := rw.readerCount
	rw.atomicLock.Release(caller)

	for i := 0; i < r; i++ {
		rw.readerSem.V()
	}
	rw.writerMutex.Release(caller)
}
