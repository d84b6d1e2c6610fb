package syscall

import (
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/device"
	"github.com/go-simkernel/simkernel/fs"
	"github.com/go-simkernel/simkernel/sched"
	"github.com/go-simkernel/simkernel/vm"
)

// Syscall numbers.
const (
	SysHalt   = 1
	SysExit   = 2
	SysExec   = 3
	SysJoin   = 4
	SysCreate = 5
	SysRemove = 6
	SysOpen   = 7
	SysClose  = 8
	SysRead   = 9
	SysWrite  = 10
	SysLS     = 11
	SysCD     = 12
)

// ConsoleInFd and ConsoleOutFd are the fixed file-descriptor indices
// reserved for console input and output.
const (
	ConsoleInFd  = 0
	ConsoleOutFd = 1
)

// Kernel is the subset of *kernel.Kernel the dispatcher needs. Declared
// here, rather than imported from kernel, so this package does not import
// the package that will eventually import it for wiring (kernel.Kernel
// embeds no reference back to syscall, but naming the narrow slice keeps
// the dependency direction explicit either way).
type Kernel interface {
	FileSystem() *fs.FileSystem
	Console() *device.SynchConsole
	Exit(caller *sched.Thread, pid, status int)
	Join(caller *sched.Thread, pid int) (int, defs.Err_t)
	Exec(caller *sched.Thread, path string) (int, defs.Err_t)
	MaxReadSize() int
	MaxWriteSize() int
	FileNameMaxLen() int
}

// openFileDescriptor adapts *fs.OpenFile to sched.FileDescriptor, binding
// the caller thread the underlying Close(caller) call needs — the
// FileSystem's own API always takes an explicit caller (this kernel never
// has an implicit "current thread"), but sched.FileDescriptor.Close takes
// none, since sched must not import fs.
type openFileDescriptor struct {
	file   *fs.OpenFile
	caller *sched.Thread
}

func (o *openFileDescriptor) Close() error {
	if err := o.file.Close(o.caller); err != defs.OK {
		return err
	}
	return nil
}

// Args is the decoded register window for one syscall: the four argument
// registers (R4-R7); the syscall number travels in R2, the result goes
// back in R2.
type Args struct {
	A1, A2, A3, A4 int
}

// Dispatch decodes and executes one syscall for caller, whose address
// space is as (nil for Halt, which needs none). It returns the value to
// place in R2.
func Dispatch(k Kernel, caller *sched.Thread, as *vm.AddressSpace, sysno int, args Args) int {
	switch sysno {
	case SysHalt:
		return 0
	case SysExit:
		k.Exit(caller, caller.Pid, args.A1)
		return 0
	case SysExec:
		return sysExec(k, caller, as, args)
	case SysJoin:
		return sysJoin(k, caller, args)
	case SysCreate:
		return sysCreate(k, caller, as, args)
	case SysRemove:
		return sysRemove(k, caller, as, args)
	case SysOpen:
		return sysOpen(k, caller, as, args)
	case SysClose:
		return sysClose(caller, args)
	case SysRead:
		return sysRead(k, caller, as, args)
	case SysWrite:
		return sysWrite(k, caller, as, args)
	case SysLS:
		return sysLS(k, caller)
	case SysCD:
		// Directory change is not modeled (the filesystem has a single
		// flat directory); accepted as a no-op rather than rejected
		// outright since no caller depends on it failing.
		return 0
	default:
		return int(defs.EINVAL)
	}
}

func sysExec(k Kernel, caller *sched.Thread, as *vm.AddressSpace, args Args) int {
	name, err := readPathArg(caller, as, args.A2, k.FileNameMaxLen())
	if err != defs.OK {
		return -1
	}
	pid, err := k.Exec(caller, name)
	if err != defs.OK {
		return -1
	}
	return pid
}

func sysJoin(k Kernel, caller *sched.Thread, args Args) int {
	status, err := k.Join(caller, args.A1)
	if err != defs.OK {
		return -1
	}
	return status
}

func sysCreate(k Kernel, caller *sched.Thread, as *vm.AddressSpace, args Args) int {
	name, err := readPathArg(caller, as, args.A1, k.FileNameMaxLen())
	if err != defs.OK {
		return int(err)
	}
	return int(k.FileSystem().Create(caller, name, 0))
}

func sysRemove(k Kernel, caller *sched.Thread, as *vm.AddressSpace, args Args) int {
	name, err := readPathArg(caller, as, args.A1, k.FileNameMaxLen())
	if err != defs.OK {
		return int(err)
	}
	return int(k.FileSystem().Remove(caller, name))
}

func sysOpen(k Kernel, caller *sched.Thread, as *vm.AddressSpace, args Args) int {
	name, err := readPathArg(caller, as, args.A1, k.FileNameMaxLen())
	if err != defs.OK {
		return -1
	}
	file, oerr := k.FileSystem().Open(caller, name)
	if oerr != defs.OK {
		return -1
	}
	fdn, ok := caller.AllocFd(&openFileDescriptor{file: file, caller: caller})
	if !ok {
		file.Close(caller)
		return -1
	}
	return fdn
}

func sysClose(caller *sched.Thread, args Args) int {
	fdn := args.A1
	fdesc := caller.Fd(fdn)
	if fdesc == nil {
		return int(defs.ENOENT)
	}
	caller.SetFd(fdn, nil)
	if err := fdesc.Close(); err != nil {
		return int(err.(defs.Err_t))
	}
	return 0
}

func sysRead(k Kernel, caller *sched.Thread, as *vm.AddressSpace, args Args) int {
	bufp, size, fdn := args.A1, args.A2, args.A3
	if size <= 0 {
		return 0
	}
	if size > k.MaxReadSize() {
		size = k.MaxReadSize()
	}

	if fdn == ConsoleInFd {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = k.Console().GetChar(caller)
		}
		if err := WriteBufferToUser(caller, as, bufp, buf); err != defs.OK {
			return -1
		}
		return size
	}

	fdesc := caller.Fd(fdn)
	ofd, ok := fdesc.(*openFileDescriptor)
	if !ok || ofd == nil {
		return int(defs.ENOENT)
	}
	buf := make([]byte, size)
	n := ofd.file.Read(caller, buf)
	if err := WriteBufferToUser(caller, as, bufp, buf[:n]); err != defs.OK {
		return -1
	}
	return n
}

func sysWrite(k Kernel, caller *sched.Thread, as *vm.AddressSpace, args Args) int {
	bufp, size, fdn := args.A1, args.A2, args.A3
	if size <= 0 {
		return 0
	}
	if size > k.MaxWriteSize() {
		size = k.MaxWriteSize()
	}

	buf := make([]byte, size)
	if err := ReadBufferFromUser(caller, as, bufp, buf); err != defs.OK {
		return -1
	}

	if fdn == ConsoleOutFd {
		for _, b := range buf {
			k.Console().PutChar(caller, b)
		}
		return size
	}

	fdesc := caller.Fd(fdn)
	ofd, ok := fdesc.(*openFileDescriptor)
	if !ok || ofd == nil {
		return int(defs.ENOENT)
	}
	return ofd.file.Write(caller, buf)
}

func sysLS(k Kernel, caller *sched.Thread) int {
	names := k.FileSystem().List(caller)
	for _, n := range names {
		for i := 0; i < len(n); i++ {
			k.Console().PutChar(caller, n[i])
		}
		k.Console().PutChar(caller, '\n')
	}
	return len(names)
}

func readPathArg(caller *sched.Thread, as *vm.AddressSpace, uva int, maxLen int) (string, defs.Err_t) {
	return ReadStringFromUser(caller, as, uva, maxLen)
}
