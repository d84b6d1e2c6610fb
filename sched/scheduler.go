package sched

import "sync"

// Scheduler is a single-CPU cooperative round-robin implementation of
// Contract, over NumQueues priority levels, grounded on
// other_examples/zhoujunjun-apple-xinu-go__resched.go's queue-per-priority
// shape, simplified to cooperative scheduling: threads only ever give up
// the CPU at an explicit Yield, never by preemption.
//
// Scheduler is itself guarded by a plain mutex standing in for "disable
// interrupts": the real kernel this models obtains atomicity by masking
// interrupts around critical sections; running each thread as a Go
// goroutine instead means a dedicated mutex has to do that job, so
// DisableInterrupts/Restore below just lock and unlock it.
type Scheduler struct {
	mu      sync.Mutex
	queues  [][]*Thread // one FIFO queue per priority level, low index = low priority
	current *Thread
	wake    map[*Thread]chan struct{}
}

// NewScheduler builds a Scheduler with numQueues priority levels and cur
// as the thread considered "currently running" before the first Sleep.
func NewScheduler(numQueues int, cur *Thread) *Scheduler {
	return &Scheduler{
		queues:  make([][]*Thread, numQueues),
		current: cur,
		wake:    make(map[*Thread]chan struct{}),
	}
}

func (s *Scheduler) queueFor(t *Thread) int {
	q := int(t.Priority)
	if q < 0 {
		q = 0
	}
	if q >= len(s.queues) {
		q = len(s.queues) - 1
	}
	return q
}

// Ready implements Contract.Ready: move t to Ready and append it to its
// priority queue. Must be called with the caller already holding the mask
// from DisableInterrupts, the same way Semaphore.V pops a waiter, makes
// it ready, and increments the count all under one masked section.
func (s *Scheduler) Ready(t *Thread) {
	t.State = Ready
	q := s.queueFor(t)
	s.queues[q] = append(s.queues[q], t)
	ch, ok := s.wake[t]
	if !ok {
		ch = make(chan struct{}, 1)
		s.wake[t] = ch
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Sleep implements Contract.Sleep: block t until some other call makes it
// Ready again. The caller must hold the mask returned by a prior
// DisableInterrupts; Sleep releases the scheduler's internal lock (the
// interrupt-mask stand-in) for the duration of the actual block, so a
// sleeping thread doesn't hold up every other thread trying to enter a
// critical section, then re-acquires it before returning.
func (s *Scheduler) Sleep(t *Thread) {
	t.State = Blocked
	ch, ok := s.wake[t]
	if !ok {
		ch = make(chan struct{}, 1)
		s.wake[t] = ch
	}
	s.mu.Unlock()
	<-ch
	s.mu.Lock()
}

// Current implements Contract.Current.
func (s *Scheduler) Current() *Thread {
	return s.current
}

// DisableInterrupts implements Contract.DisableInterrupts by acquiring the
// scheduler's lock; the returned mask is unused bookkeeping (a real
// interrupt level has no analogue under a mutex) kept only so call sites
// match the Contract signature.
func (s *Scheduler) DisableInterrupts() InterruptMask {
	s.mu.Lock()
	return 0
}

// Restore implements Contract.Restore by releasing the scheduler's lock.
func (s *Scheduler) Restore(mask InterruptMask) {
	s.mu.Unlock()
}

// Yield voluntarily gives up the CPU, moving the current thread onto its
// ready queue and switching to the next runnable thread of the highest
// nonempty priority.
func (s *Scheduler) Yield() {
	mask := s.DisableInterrupts()
	defer s.Restore(mask)

	next := s.pickNext()
	if next == nil {
		return
	}
	prev := s.current
	prev.State = Ready
	s.queues[s.queueFor(prev)] = append(s.queues[s.queueFor(prev)], prev)
	s.switchTo(next)
}

// pickNext removes and returns the head of the highest nonempty priority
// queue, or nil if every queue is empty.
func (s *Scheduler) pickNext() *Thread {
	for q := len(s.queues) - 1; q >= 0; q-- {
		if len(s.queues[q]) > 0 {
			t := s.queues[q][0]
			s.queues[q] = s.queues[q][1:]
			return t
		}
	}
	return nil
}

func (s *Scheduler) switchTo(next *Thread) {
	next.State = Running
	s.current = next
}
