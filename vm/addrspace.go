package vm

import (
	"fmt"

	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/fs"
	"github.com/go-simkernel/simkernel/noff"
	"github.com/go-simkernel/simkernel/sched"
)

// AddressSpace is one process's virtual-memory context: its page table,
// the executable it demand-loads code/data from, and its per-process
// swap file. Its segment-intersection loading logic is adapted from
// ELF/mmap-style segment loading down to NOFF's fixed three-segment
// layout.
type AddressSpace struct {
	cfg        *config.Config
	pid        int
	pageTable  *PageTable
	coreMap    *CoreMap
	tlb        *TLB
	header     noff.Header
	executable *fs.OpenFile
	swapFile   *fs.OpenFile
}

// segments returns the executable's loadable segments (code, then
// initialized data) in order, for LoadPage's intersection search.
func (as *AddressSpace) segments() []noff.Segment {
	return []noff.Segment{as.header.Code, as.header.InitData}
}

// NewAddressSpace reads executable's NOFF header, sizes a PageTable
// covering every segment plus a user stack, creates pid's swap file, and
// registers with coreMap as that pid's eviction callback.
func NewAddressSpace(cfg *config.Config, caller *sched.Thread, coreMap *CoreMap, tlb *TLB, fsys *fs.FileSystem, executable *fs.OpenFile, pid int) (*AddressSpace, defs.Err_t) {
	buf := make([]byte, noff.HeaderSize)
	if n := executable.ReadAt(caller, buf, 0); n != noff.HeaderSize {
		return nil, defs.EINVAL
	}
	header, ok := noff.Decode(buf)
	if !ok {
		return nil, defs.EINVAL
	}

	top := header.Code.VirtualAddr + header.Code.Size
	if v := header.InitData.VirtualAddr + header.InitData.Size; v > top {
		top = v
	}
	if v := header.UninitData.VirtualAddr + header.UninitData.Size; v > top {
		top = v
	}
	total := int(top) + cfg.UserStackSize
	numPages := (total + cfg.PageSize - 1) / cfg.PageSize

	as := &AddressSpace{
		cfg:        cfg,
		pid:        pid,
		pageTable:  NewPageTable(numPages),
		coreMap:    coreMap,
		tlb:        tlb,
		header:     header,
		executable: executable,
	}

	swapName := fmt.Sprintf("swap.%d", pid)
	if err := fsys.Create(caller, swapName, 0); err != defs.OK {
		return nil, err
	}
	swapFile, err := fsys.Open(caller, swapName)
	if err != defs.OK {
		return nil, err
	}
	as.swapFile = swapFile

	coreMap.RegisterOwner(caller, pid, as)
	return as, defs.OK
}

// PageTable satisfies FrameOwner.
func (as *AddressSpace) PageTable() *PageTable {
	return as.pageTable
}

// WriteSwapPage satisfies FrameOwner: writes a dirty frame's bytes to
// this process's swap file at the page's byte offset.
func (as *AddressSpace) WriteSwapPage(caller *sched.Thread, vpn int, data []byte) error {
	offset := int64(vpn) * int64(as.cfg.PageSize)
	if n := as.swapFile.WriteAt(caller, data, offset); n != len(data) {
		return fmt.Errorf("vm: short swap write for vpn %d: %d of %d bytes", vpn, n, len(data))
	}
	return nil
}

// LoadPage handles a first-touch page fault for vpn: reserves a frame,
// zeroes it, and copies in whatever bytes of the code and initialized-
// data segments overlap the page.
func (as *AddressSpace) LoadPage(caller *sched.Thread, vpn int) defs.Err_t {
	frame, err := as.coreMap.ReserveNextAvailableFrame(caller, vpn, as.pid)
	if err != defs.OK {
		return err
	}
	dst := as.coreMap.FrameBytes(frame)
	for i := range dst {
		dst[i] = 0
	}

	pageStart := vpn * as.cfg.PageSize
	pageEnd := pageStart + as.cfg.PageSize
	for _, seg := range as.segments() {
		segStart := int(seg.VirtualAddr)
		segEnd := segStart + int(seg.Size)
		lo, hi := segStart, segEnd
		if pageStart > lo {
			lo = pageStart
		}
		if pageEnd < hi {
			hi = pageEnd
		}
		if lo >= hi {
			continue
		}
		fileOff := int64(seg.InFileAddr) + int64(lo-segStart)
		n := hi - lo
		chunk := dst[lo-pageStart : lo-pageStart+n]
		if read := as.executable.ReadAt(caller, chunk, fileOff); read != n {
			return defs.EFAULT
		}
	}

	as.pageTable.Set(vpn, PageTableEntry{
		PhysicalPage: frame,
		Valid:        true,
		ReadOnly:     false,
		Use:          false,
		Dirty:        true,
		InMemory:     true,
	})
	return defs.OK
}

// LoadPageFromSwap handles a fault on a page previously evicted to swap:
// reserves a frame and reads the page's bytes back from this process's
// swap file.
func (as *AddressSpace) LoadPageFromSwap(caller *sched.Thread, vpn int) defs.Err_t {
	frame, err := as.coreMap.ReserveNextAvailableFrame(caller, vpn, as.pid)
	if err != defs.OK {
		return err
	}
	dst := as.coreMap.FrameBytes(frame)
	offset := int64(vpn) * int64(as.cfg.PageSize)
	if n := as.swapFile.ReadAt(caller, dst, offset); n != len(dst) {
		return defs.EFAULT
	}

	as.pageTable.Set(vpn, PageTableEntry{
		PhysicalPage: frame,
		Valid:        true,
		ReadOnly:     false,
		Use:          false,
		Dirty:        false,
		InMemory:     true,
	})
	return defs.OK
}

// Translate installs (or refreshes) the TLB entry for vpn from the page
// table, rotating out whatever entry currently occupies the next slot.
func (as *AddressSpace) Translate(vpn int) {
	pte := as.pageTable.Get(vpn)
	as.tlb.Install(TLBEntry{
		VirtualPage:  vpn,
		PhysicalPage: pte.PhysicalPage,
		Valid:        pte.Valid,
		ReadOnly:     pte.ReadOnly,
	})
}

// faultIn resolves vpn to a present page table entry and installs the
// resulting translation in the TLB. Must be called whenever a TLB lookup
// misses. vpn's page table entry tells it what the miss actually means:
// valid=false means the page has never been loaded, so it is read in from
// the executable; valid=true, inMemory=false means it was paged out and
// is read back from swap; valid=true, inMemory=true means the page is
// still resident and only its TLB translation needs refreshing.
func (as *AddressSpace) faultIn(caller *sched.Thread, vpn int) defs.Err_t {
	pte := as.pageTable.Get(vpn)
	switch {
	case !pte.Valid:
		if err := as.LoadPage(caller, vpn); err != defs.OK {
			return err
		}
	case !pte.InMemory:
		if err := as.LoadPageFromSwap(caller, vpn); err != defs.OK {
			return err
		}
	}
	as.Translate(vpn)
	return defs.OK
}

// HandleFault resolves a TLB miss on vpn: the exception handler's page-
// fault path calls this directly to have the AddressSpace either demand-
// load a page from the executable or fetch it from the process's swap
// file.
func (as *AddressSpace) HandleFault(caller *sched.Thread, vpn int) defs.Err_t {
	if vpn < 0 || vpn >= as.pageTable.NumPages() {
		return defs.EFAULT
	}
	return as.faultIn(caller, vpn)
}

// ReadByte and WriteByte are the MMU-level primitives syscall transfer
// helpers loop over one byte at a time, resolving a user virtual address
// through the TLB and faulting the backing page in on a miss before
// touching simulated physical RAM.
func (as *AddressSpace) ReadByte(caller *sched.Thread, uva int) (byte, defs.Err_t) {
	vpn := uva / as.cfg.PageSize
	offset := uva % as.cfg.PageSize
	if vpn < 0 || vpn >= as.pageTable.NumPages() {
		return 0, defs.EFAULT
	}

	entry, ok := as.tlb.Lookup(vpn)
	if !ok {
		if err := as.faultIn(caller, vpn); err != defs.OK {
			return 0, err
		}
		entry, _ = as.tlb.Lookup(vpn)
	}

	frame := entry.PhysicalPage
	as.coreMap.MarkAccessed(caller, frame)
	return as.coreMap.FrameBytes(frame)[offset], defs.OK
}

func (as *AddressSpace) WriteByte(caller *sched.Thread, uva int, b byte) defs.Err_t {
	vpn := uva / as.cfg.PageSize
	offset := uva % as.cfg.PageSize
	if vpn < 0 || vpn >= as.pageTable.NumPages() {
		return defs.EFAULT
	}

	entry, ok := as.tlb.Lookup(vpn)
	if !ok || entry.ReadOnly {
		if err := as.faultIn(caller, vpn); err != defs.OK {
			return err
		}
		entry, _ = as.tlb.Lookup(vpn)
	}
	if entry.ReadOnly {
		return defs.EFAULT
	}

	frame := entry.PhysicalPage
	as.coreMap.FrameBytes(frame)[offset] = b
	as.coreMap.MarkAccessed(caller, frame)
	as.coreMap.MarkModified(caller, frame)

	pte := as.pageTable.Get(vpn)
	pte.Dirty = true
	as.pageTable.Set(vpn, pte)
	return defs.OK
}

// Pid satisfies sched.AddressSpaceOwner.
func (as *AddressSpace) Pid() int {
	return as.pid
}

// Close releases the address space's swap file handle and drops its
// CoreMap eviction registration.
func (as *AddressSpace) Close(caller *sched.Thread) {
	as.coreMap.UnregisterOwner(caller, as.pid)
	as.swapFile.Close(caller)
}
