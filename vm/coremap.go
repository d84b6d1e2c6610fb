package vm

import (
	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
	simsync "github.com/go-simkernel/simkernel/sync"
)

// CoreEntry is one physical frame's ownership record. Vpn is -1 for a
// free frame. Accessed/Modified are set by MarkAccessed/MarkModified,
// start clear whenever the frame is stamped, and drive GetFrameToSwap's
// classification; they are kept apart from the page table entry's
// Use/Dirty bits.
type CoreEntry struct {
	Vpn      int
	Pid      int
	Accessed bool
	Modified bool
}

// FrameOwner is the subset of AddressSpace the CoreMap needs to evict one
// of its pages: its page table (to read/update the victim's entry) and
// its swap file (to write back dirty contents). AddressSpace implements
// this; CoreMap never names vm's own AddressSpace type directly so the
// two can reference each other without a cycle — they already live in the
// same package, but the interface keeps eviction's dependency explicit
// and narrow.
type FrameOwner interface {
	PageTable() *PageTable
	WriteSwapPage(caller *sched.Thread, vpn int, data []byte) error
}

// CoreMap is the process-wide physical-frame table, guarded by a single
// lock standing in for the real kernel's interrupt-disabled critical
// section. Restructured around the improved-second-chance rotation
// other_examples/wechicken456-Go-Page-Replacement__main.go's clock-hand
// loop demonstrates.
type CoreMap struct {
	lock      *simsync.Lock
	sc        sched.Contract
	tlb       *TLB
	entries   []CoreEntry
	clockHand int
	maxSteps  int
	pageSize  int
	ram       []byte
	owners    map[int]FrameOwner
}

// NewCoreMap builds a CoreMap with cfg.NumPhysPages frames, all free, and
// its own backing store of simulated physical RAM.
func NewCoreMap(cfg *config.Config, sc sched.Contract, tlb *TLB) *CoreMap {
	entries := make([]CoreEntry, cfg.NumPhysPages)
	for i := range entries {
		entries[i].Vpn = -1
	}
	return &CoreMap{
		lock:     simsync.NewLock("coremap", sc),
		sc:       sc,
		tlb:      tlb,
		entries:  entries,
		maxSteps: cfg.MaxFrameClasses * cfg.NumPhysPages,
		pageSize: cfg.PageSize,
		ram:      make([]byte, cfg.NumPhysPages*cfg.PageSize),
		owners:   make(map[int]FrameOwner),
	}
}

// RegisterOwner records which FrameOwner to call back into when one of
// pid's frames must be evicted. AddressSpace calls this once at
// construction.
func (cm *CoreMap) RegisterOwner(caller *sched.Thread, pid int, owner FrameOwner) {
	cm.lock.Acquire(caller)
	defer cm.lock.Release(caller)
	cm.owners[pid] = owner
}

// UnregisterOwner drops pid's eviction callback, e.g. on process exit.
func (cm *CoreMap) UnregisterOwner(caller *sched.Thread, pid int) {
	cm.lock.Acquire(caller)
	defer cm.lock.Release(caller)
	delete(cm.owners, pid)
}

// FrameBytes returns the slice of simulated physical RAM backing frame.
// Callers (AddressSpace) copy segment or swap data into/out of it while
// holding whatever lock is appropriate for their own bookkeeping; the
// CoreMap itself treats frame contents as opaque bytes.
func (cm *CoreMap) FrameBytes(frame int) []byte {
	return cm.ram[frame*cm.pageSize : (frame+1)*cm.pageSize]
}

// MarkAccessed and MarkModified record a reference or a write to frame,
// driving GetFrameToSwap's classification. AddressSpace.ReadByte calls
// MarkAccessed on every byte it reads, and AddressSpace.WriteByte calls
// both on every byte it writes — this kernel does not simulate actual
// MIPS instruction execution, so nothing else touches these bits.
func (cm *CoreMap) MarkAccessed(caller *sched.Thread, frame int) {
	cm.lock.Acquire(caller)
	defer cm.lock.Release(caller)
	cm.entries[frame].Accessed = true
}

func (cm *CoreMap) MarkModified(caller *sched.Thread, frame int) {
	cm.lock.Acquire(caller)
	defer cm.lock.Release(caller)
	cm.entries[frame].Modified = true
}

// ReserveNextAvailableFrame returns a free frame if one exists, or evicts
// a victim chosen by GetFrameToSwap and returns it instead. The returned
// frame is stamped with (vpn, pid) before return.
func (cm *CoreMap) ReserveNextAvailableFrame(caller *sched.Thread, vpn, pid int) (int, defs.Err_t) {
	cm.lock.Acquire(caller)
	defer cm.lock.Release(caller)

	for i := range cm.entries {
		if cm.entries[i].Vpn == -1 {
			cm.entries[i] = CoreEntry{Vpn: vpn, Pid: pid}
			return i, defs.OK
		}
	}

	victim := cm.getFrameToSwap()
	if err := cm.evict(caller, victim, vpn, pid); err != defs.OK {
		return 0, err
	}
	return victim, defs.OK
}

// getFrameToSwap implements the improved second-chance clock rotation.
// Must be called with lock held.
func (cm *CoreMap) getFrameToSwap() int {
	n := len(cm.entries)
	for step := 0; step < cm.maxSteps; step++ {
		i := cm.clockHand
		e := &cm.entries[i]
		cm.clockHand = (cm.clockHand + 1) % n

		switch {
		case !e.Accessed && !e.Modified:
			return i
		case !e.Accessed && e.Modified:
			// Class (0,1): clear modified, promoting the frame to (0,0)
			// for the next pass. Whether the victim is written back is
			// decided by its page table entry's Dirty bit, not this one.
			e.Modified = false
		case e.Accessed && !e.Modified:
			// Class (1,0): demote to (0,1).
			e.Accessed = false
			e.Modified = true
		default:
			// Class (1,1): clear accessed, demote to (0,1).
			e.Accessed = false
		}
	}
	// Every frame reaches (0,0) within two passes of the clock hand, so a
	// victim turns up within 2*n+1 steps; reaching here means maxSteps was
	// configured below that.
	defs.Raise("CoreMap.getFrameToSwap", "no (0,0) victim found within bound")
	return 0
}

// evict writes the frame chosen by getFrameToSwap out to its owner's swap
// file if dirty, then marks it paged out. Must be called with lock held.
func (cm *CoreMap) evict(caller *sched.Thread, frame, newVpn, newPid int) defs.Err_t {
	victim := cm.entries[frame]
	owner, ok := cm.owners[victim.Pid]
	if !ok {
		defs.Raise("CoreMap.evict", "victim frame's owner is not registered")
	}

	pt := owner.PageTable()
	pte := pt.Get(victim.Vpn)
	if !pte.Valid || pte.PhysicalPage != frame {
		defs.Raise("CoreMap.evict", "victim page table entry inconsistent with core map")
	}

	if pte.Dirty {
		if err := owner.WriteSwapPage(caller, victim.Vpn, cm.FrameBytes(frame)); err != nil {
			return defs.ENOSPC
		}
	}

	// Valid stays true: a paged-out entry (valid=true, inMemory=false)
	// must stay distinguishable from one that was never loaded
	// (valid=false), or a later fault can't tell swap-in from first touch.
	pte.InMemory = false
	pt.Set(victim.Vpn, pte)

	if cm.sc.Current().Pid == victim.Pid {
		cm.tlb.InvalidateVPN(victim.Vpn)
	}

	cm.entries[frame] = CoreEntry{Vpn: newVpn, Pid: newPid}
	return defs.OK
}
