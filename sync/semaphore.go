// Package sync implements the kernel's synchronization primitives:
// Semaphore, Lock (with priority donation), Condition (Hoare-style),
// Port (one-shot rendezvous), and RWMutex. Every primitive obtains its
// atomicity from sched.Contract's interrupt mask: disabling interrupts
// around a critical section is the one primitive all of these are built
// from, rather than each rolling its own locking.
package sync

import "github.com/go-simkernel/simkernel/sched"

// Semaphore is a FIFO counting semaphore. Invariant: value == 0 implies
// the queue may be nonempty; value > 0 implies the queue is empty.
type Semaphore struct {
	Name  string
	sched sched.Contract
	value int
	queue []*sched.Thread
}

// NewSemaphore builds a Semaphore with the given initial (nonnegative)
// value, bound to s for interrupt masking and thread wakeup.
func NewSemaphore(name string, value int, s sched.Contract) *Semaphore {
	if value < 0 {
		panic("Semaphore: negative initial value")
	}
	return &Semaphore{Name: name, sched: s, value: value}
}

// P (wait) blocks caller until value > 0, then decrements it. The
// check-and-decrement (or enqueue-and-sleep) step is atomic under the
// scheduler's interrupt mask.
func (sem *Semaphore) P(caller *sched.Thread) {
	mask := sem.sched.DisableInterrupts()
	defer sem.sched.Restore(mask)

	for sem.value == 0 {
		sem.queue = append(sem.queue, caller)
		sem.sched.Sleep(caller)
	}
	sem.value--
}

// V (signal) wakes the longest-waiting blocked thread, if any, in strict
// FIFO order, then increments value.
func (sem *Semaphore) V() {
	mask := sem.sched.DisableInterrupts()
	defer sem.sched.Restore(mask)

	if len(sem.queue) > 0 {
		t := sem.queue[0]
		sem.queue = sem.queue[1:]
		sem.sched.Ready(t)
	}
	sem.value++
}

// Value reports the current count, for tests and diagnostics only; no
// kernel code should branch on it outside P/V.
func (sem *Semaphore) Value() int {
	return sem.value
}
