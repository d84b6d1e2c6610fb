// Package process tracks the exit status and join waiters for every
// running SpaceId, keyed by pid rather than carried on sched.Thread
// itself (see sched/thread.go's doc comment: Thread must stay free of
// both sync and process to avoid an import cycle, since sync needs
// sched.Contract and process needs sync's Semaphore).
//
// Narrowed from a thread-group wait model (separate process/thread wait
// lists, multiple children) down to this kernel's single-thread-per-process
// model: one SpaceId, one exit status, one Join.
package process

import (
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
	simsync "github.com/go-simkernel/simkernel/sync"
)

// entry is one process's exit bookkeeping. done is posted exactly once,
// by Exit; Join waits on it and then reads status.
type entry struct {
	done   *simsync.Semaphore
	exited bool
	status int
}

// Table maps pid to exit bookkeeping. A single Lock serializes all
// access; per-pid blocking happens on each entry's own semaphore, so one
// process's Join never stalls registration or exit of another.
type Table struct {
	lock    *simsync.Lock
	entries map[int]*entry
	sc      sched.Contract
	nextPid int
}

// NewTable builds an empty Table. Pid 0 is reserved for the boot thread,
// so the first pid NextPid hands out is 1.
func NewTable(sc sched.Contract) *Table {
	return &Table{
		lock:    simsync.NewLock("process.table", sc),
		entries: make(map[int]*entry),
		sc:      sc,
		nextPid: 1,
	}
}

// NextPid allocates the next SpaceId for Exec to assign to a new process.
func (t *Table) NextPid(caller *sched.Thread) int {
	t.lock.Acquire(caller)
	defer t.lock.Release(caller)
	pid := t.nextPid
	t.nextPid++
	return pid
}

// Register records a freshly created pid as running, with no exit status
// yet. Must be called once per pid before any Exit or Join referencing
// it.
func (t *Table) Register(caller *sched.Thread, pid int) {
	t.lock.Acquire(caller)
	defer t.lock.Release(caller)
	t.entries[pid] = &entry{done: simsync.NewSemaphore("process.done", 0, t.sc)}
}

// Exit records pid's exit status and wakes any thread blocked in Join on
// it. Precondition: pid was Registered and has not already Exited.
func (t *Table) Exit(caller *sched.Thread, pid int, status int) {
	t.lock.Acquire(caller)
	e, ok := t.entries[pid]
	t.lock.Release(caller)
	if !ok {
		defs.Raise("Table.Exit", "exit for unregistered pid")
	}

	t.lock.Acquire(caller)
	e.status = status
	e.exited = true
	t.lock.Release(caller)
	e.done.V()
}

// Join blocks caller until pid exits, then returns its exit status and
// forgets pid (a process may be joined exactly once, mirroring
// common/wait.go's "only one wait for a specific pid may succeed").
// Returns ENOENT if pid was never registered or has already been joined.
// Only one thread may Join a given pid concurrently — this kernel's
// single-thread-per-process model has exactly one parent per child, so a
// second concurrent Join on the same pid is not a supported call pattern.
func (t *Table) Join(caller *sched.Thread, pid int) (int, defs.Err_t) {
	t.lock.Acquire(caller)
	e, ok := t.entries[pid]
	t.lock.Release(caller)
	if !ok {
		return 0, defs.ENOENT
	}

	e.done.P(caller)

	t.lock.Acquire(caller)
	delete(t.entries, pid)
	t.lock.Release(caller)

	return e.status, defs.OK
}
