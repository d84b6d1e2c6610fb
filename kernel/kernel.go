// Package kernel bundles the subsystem singletons — scheduler, file
// system, console, disk, TLB, and frame table — into one context object
// passed down to every handler, instead of file-scoped package globals.
package kernel

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/device"
	"github.com/go-simkernel/simkernel/fs"
	"github.com/go-simkernel/simkernel/process"
	"github.com/go-simkernel/simkernel/sched"
	"github.com/go-simkernel/simkernel/vm"
)

// Kernel is the former-globals context: scheduler, file system, process
// table, console, and the size tunables and logger every subsystem needs.
// One Kernel is constructed at startup, by running its subsystem
// constructors in dependency order, and threaded through the syscall
// dispatcher and exception handlers.
type Kernel struct {
	Cfg   *config.Config
	Sched *sched.Scheduler
	FS    *fs.FileSystem
	Procs *process.Table
	Disk  *device.SynchDisk
	Cons  *device.SynchConsole
	TLB   *vm.TLB
	Cores *vm.CoreMap
	Log   *logrus.Logger

	asMu   sync.Mutex
	spaces map[int]*vm.AddressSpace
}

// New boots a Kernel: formats a fresh file system on disk, builds an
// empty process table and CoreMap, and wires the console. caller is the
// boot thread used for the one-time formatting work, standing in for any
// user thread until Exec creates the first one.
func New(cfg *config.Config, disk device.Disk, console device.Console, caller *sched.Thread, log *logrus.Logger) *Kernel {
	if log == nil {
		log = logrus.New()
	}
	sc := sched.NewScheduler(cfg.NumQueues, caller)
	synchDisk := device.NewSynchDisk(disk, sc)
	synchCons := device.NewSynchConsole(console, sc)
	fsys := fs.NewFileSystem(cfg, synchDisk, sc, caller)
	tlb := vm.NewTLB(cfg.TLBSize)
	cores := vm.NewCoreMap(cfg, sc, tlb)

	return &Kernel{
		Cfg:    cfg,
		Sched:  sc,
		FS:     fsys,
		Procs:  process.NewTable(sc),
		Disk:   synchDisk,
		Cons:   synchCons,
		TLB:    tlb,
		Cores:  cores,
		Log:    log,
		spaces: make(map[int]*vm.AddressSpace),
	}
}

// newAddressSpace opens executableName and builds a fresh AddressSpace for
// it under pid, using the kernel's shared CoreMap but a TLB of its own:
// each AddressSpace owns the translation context it installs entries
// into, so a context switch into it never has to invalidate entries
// belonging to some other address space.
func (k *Kernel) newAddressSpace(caller *sched.Thread, executableName string, pid int) (*vm.AddressSpace, defs.Err_t) {
	exe, err := k.FS.Open(caller, executableName)
	if err != defs.OK {
		return nil, err
	}
	tlb := vm.NewTLB(k.Cfg.TLBSize)
	as, aerr := vm.NewAddressSpace(k.Cfg, caller, k.Cores, tlb, k.FS, exe, pid)
	if aerr != defs.OK {
		exe.Close(caller)
		return nil, aerr
	}
	return as, defs.OK
}

// Exec implements the Exec syscall's kernel-side half: allocate a pid,
// build its AddressSpace from the named executable, and register it in
// the process table so a later Join can observe its exit. Actually
// dispatching a new thread onto the scheduler to run that address space
// is the instruction simulator's job, out of scope here, so Exec hands
// back a pid whose AddressSpace is ready to be driven.
func (k *Kernel) Exec(caller *sched.Thread, path string) (int, defs.Err_t) {
	pid := k.Procs.NextPid(caller)
	as, err := k.newAddressSpace(caller, path, pid)
	if err != defs.OK {
		return 0, err
	}
	k.asMu.Lock()
	k.spaces[pid] = as
	k.asMu.Unlock()
	k.Procs.Register(caller, pid)
	return pid, defs.OK
}

// AddressSpace returns the AddressSpace Exec built for pid, for a caller
// (the instruction simulator, or this demo's cmd/simkernel) that needs to
// drive syscalls on its behalf.
func (k *Kernel) AddressSpace(pid int) (*vm.AddressSpace, bool) {
	k.asMu.Lock()
	defer k.asMu.Unlock()
	as, ok := k.spaces[pid]
	return as, ok
}

// Exit implements the Exit syscall: records status, wakes any Join
// waiting on pid, and releases its AddressSpace's swap file and CoreMap
// registration.
func (k *Kernel) Exit(caller *sched.Thread, pid, status int) {
	k.asMu.Lock()
	as, ok := k.spaces[pid]
	delete(k.spaces, pid)
	k.asMu.Unlock()
	if ok {
		as.Close(caller)
	}
	k.Procs.Exit(caller, pid, status)
}

// Join implements the Join syscall.
func (k *Kernel) Join(caller *sched.Thread, pid int) (int, defs.Err_t) {
	return k.Procs.Join(caller, pid)
}

// FileSystem, Console, MaxReadSize, MaxWriteSize, and FileNameMaxLen
// satisfy syscall.Kernel, the narrow view the dispatcher consumes.
func (k *Kernel) FileSystem() *fs.FileSystem    { return k.FS }
func (k *Kernel) Console() *device.SynchConsole { return k.Cons }
func (k *Kernel) MaxReadSize() int              { return k.Cfg.MaxReadSize }
func (k *Kernel) MaxWriteSize() int             { return k.Cfg.MaxWriteSize }
func (k *Kernel) FileNameMaxLen() int           { return k.Cfg.FileNameMaxLen }
func (k *Kernel) Logger() *logrus.Logger        { return k.Log }
