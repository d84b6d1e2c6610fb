// Package exception routes the three kinds of trap the simulated CPU can
// raise into this kernel: a TLB miss (page fault), a syscall trap, and a
// fatal fault. It is the seam between the (out-of-scope) instruction
// simulator and the rest of this kernel, so its shape follows that
// control-flow directly rather than one single source file.
package exception

import (
	"github.com/sirupsen/logrus"

	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
	"github.com/go-simkernel/simkernel/syscall"
	"github.com/go-simkernel/simkernel/vm"
)

// Trapframe carries the fixed MIPS register convention this kernel
// assumes: syscall number in R2 (Sysno), arguments in R4-R7, result
// placed back into R2 (Result) once the handler returns.
type Trapframe struct {
	Sysno          int
	A1, A2, A3, A4 int
	Result         int
}

// Kernel is the subset of *kernel.Kernel the exception handlers need to
// drive the syscall dispatcher, terminate a faulting thread, and log
// diagnostics.
type Kernel interface {
	syscall.Kernel
	Logger() *logrus.Logger
}

// HandleTLBMiss resolves a page fault on vpn by asking as to load it,
// from the executable on first touch or from the swap file otherwise
// (AddressSpace.HandleFault already makes that distinction). Returns
// defs.OK once the translation is installed, or a fatal error if vpn is
// outside the address space.
func HandleTLBMiss(caller *sched.Thread, as *vm.AddressSpace, vpn int) defs.Err_t {
	return as.HandleFault(caller, vpn)
}

// HandleSyscall decodes tf per the fixed register convention and
// executes it via the syscall dispatcher, writing the result back into
// tf.Result (the simulated R2) in place of an actual PC/nextPC advance,
// which belongs to the (out-of-scope) instruction simulator.
func HandleSyscall(k Kernel, caller *sched.Thread, as *vm.AddressSpace, tf *Trapframe) {
	args := syscall.Args{A1: tf.A1, A2: tf.A2, A3: tf.A3, A4: tf.A4}
	tf.Result = syscall.Dispatch(k, caller, as, tf.Sysno, args)
}

// HandleFatal handles a user-triggered fatal exception (bad address,
// illegal instruction) by terminating the offending thread as if it had
// called Exit(-1) — uncaught user exceptions behave as Exit(-1). reason
// is logged for diagnostics before the thread is torn down.
func HandleFatal(k Kernel, caller *sched.Thread, reason string) {
	k.Logger().WithFields(logrus.Fields{
		"pid":    caller.Pid,
		"thread": caller.Name,
		"reason": reason,
	}).Error("fatal user exception, terminating thread")
	k.Exit(caller, caller.Pid, -1)
}
