package sync

import "github.com/go-simkernel/simkernel/sched"

// Condition is a Hoare-style condition variable built from three
// semaphores (S, X, H): X guards the waiter count, S releases waiters,
// and H completes the handoff back to the signaler so that Signal
// transfers control atomically — the condition the signaler just made
// true is still true when the signaler resumes. Relies on Semaphore's
// FIFO ordering rather than reimplementing Mesa-style semantics directly
// on top of sched.Contract.
type Condition struct {
	Name    string
	lock    *Lock
	waiters int
	s       *Semaphore // released waiters block here
	x       *Semaphore // mutex over the waiters counter
	h       *Semaphore // signaler blocks here until the woken waiter hands back control
}

// NewCondition builds a Condition bound to lock, which the caller must
// hold across every Wait/Signal/Broadcast call.
func NewCondition(name string, lock *Lock, sc sched.Contract) *Condition {
	return &Condition{
		Name: name,
		lock: lock,
		s:    NewSemaphore(name+".s", 0, sc),
		x:    NewSemaphore(name+".x", 1, sc),
		h:    NewSemaphore(name+".h", 0, sc),
	}
}

// Wait releases the bound lock and blocks the caller until signaled, then
// reacquires the lock before returning. The lock must be held by caller
// on entry.
func (c *Condition) Wait(caller *sched.Thread) {
	c.x.P(caller)
	c.waiters++
	c.x.V()

	c.lock.Release(caller)
	c.s.P(caller)
	c.h.V()
	c.lock.Acquire(caller)
}

// Signal wakes exactly one waiter, if any, and blocks until that waiter
// has handed control back via H — so immediately after Signal returns,
// waiters has decreased by exactly one if any waiter existed.
func (c *Condition) Signal(caller *sched.Thread) {
	c.x.P(caller)
	if c.waiters > 0 {
		c.waiters--
		c.s.V()
		c.x.V()
		c.h.P(caller)
		return
	}
	c.x.V()
}

// Broadcast releases every current waiter, then drains their handoff
// acknowledgments one at a time.
func (c *Condition) Broadcast(caller *sched.Thread) {
	c.x.P(caller)
	n := c.waiters
	c.waiters = 0
	for i := 0; i < n; i++ {
		c.s.V()
	}
	c.x.V()
	for i := 0; i < n; i++ {
		c.h.P(caller)
	}
}

// Waiters reports the current count of blocked waiters, for tests only.
func (c *Condition) Waiters() int {
	return c.waiters
}
