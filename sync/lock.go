package sync

import (
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
)

// Lock is mutual exclusion with owner tracking and single-level priority
// donation. Invariant: owner == nil iff the binary semaphore's value is 1.
type Lock struct {
	Name          string
	savedPriority *uint // owner's priority before donation; nil when no donation is in effect
	owner         *sched.Thread
	binary        *Semaphore
}

// NewLock builds an unheld Lock over a fresh binary semaphore.
func NewLock(name string, s sched.Contract) *Lock {
	return &Lock{
		Name:   name,
		binary: NewSemaphore(name+".binary", 1, s),
	}
}

// Acquire blocks until the lock is free, then takes ownership. Precondition:
// the calling thread must not already hold the lock — a violation is a
// PreconditionViolation and aborts the kernel via defs.Raise.
//
// If the lock currently has an owner whose priority is lower than the
// caller's, Acquire raises the owner's priority to the caller's for the
// duration of the hold (priority donation) and remembers the original
// value so Release can restore it. Only one level of donation is modeled:
// if donation happens twice before a Release, the first raise's saved
// priority wins.
func (l *Lock) Acquire(caller *sched.Thread) {
	if l.owner == caller {
		defs.Raise("Lock.Acquire", "already held by current thread")
	}
	if l.owner != nil && l.owner.Priority < caller.Priority {
		base := l.owner.Priority
		if l.savedPriority == nil {
			l.savedPriority = &base
		}
		l.owner.Priority = caller.Priority
	}
	l.binary.P(caller)
	l.owner = caller
}

// Release gives up ownership, restoring any donated priority. Precondition:
// the calling thread must currently hold the lock.
func (l *Lock) Release(caller *sched.Thread) {
	if l.owner != caller {
		defs.Raise("Lock.Release", "not held by current thread")
	}
	if l.savedPriority != nil {
		l.owner.Priority = *l.savedPriority
		l.savedPriority = nil
	}
	l.owner = nil
	l.binary.V()
}

// IsHeldBy reports whether t currently holds the lock.
func (l *Lock) IsHeldBy(t *sched.Thread) bool {
	return l.owner == t
}

// Owner returns the current owner, or nil if the lock is free.
func (l *Lock) Owner() *sched.Thread {
	return l.owner
}
