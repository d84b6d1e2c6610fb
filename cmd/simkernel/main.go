// Command simkernel boots a Kernel over in-memory fake devices, builds a
// tiny NOFF executable, and drives it through Exec/Create/Write/Read/Close
// to demonstrate the file system, virtual memory, and syscall layers
// working together end to end. It is the single wiring point for every
// subsystem, minus the real hardware bring-up that has no analogue in a
// simulated machine.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/device"
	"github.com/go-simkernel/simkernel/kernel"
	"github.com/go-simkernel/simkernel/noff"
	"github.com/go-simkernel/simkernel/sched"
	"github.com/go-simkernel/simkernel/syscall"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Default()
	disk := device.NewFakeDisk(4096, cfg.SectorSize, log)
	console := device.NewFakeConsole()

	boot := sched.NewThread("boot", 0, 0, cfg.NumFileDescriptors)
	k := kernel.New(cfg, disk, console, boot, log)

	if err := writeDemoProgram(k, boot); err != defs.OK {
		log.Fatalf("writing demo program: %v", err)
	}

	pid, err := k.Exec(boot, "hello")
	if err != defs.OK {
		log.Fatalf("Exec: %v", err)
	}
	log.WithField("pid", pid).Info("spawned demo program")

	as, ok := k.AddressSpace(pid)
	if !ok {
		log.Fatalf("no AddressSpace registered for pid %d", pid)
	}
	user := sched.NewThread("hello", 0, pid, cfg.NumFileDescriptors)

	// Scratch addresses past the code segment (page 0), standing in for
	// the instruction simulator's user stack — there being no real
	// program counter to have pushed arguments there itself.
	pathUVA := cfg.PageSize
	writeBufUVA := cfg.PageSize + 64

	if err := syscall.WriteStringToUser(user, as, pathUVA, "greeting"); err != defs.OK {
		log.Fatalf("writing path argument: %v", err)
	}
	if rc := syscall.Dispatch(k, user, as, syscall.SysCreate, syscall.Args{A1: pathUVA}); rc != int(defs.OK) {
		log.Fatalf("SysCreate: %d", rc)
	}

	fd := syscall.Dispatch(k, user, as, syscall.SysOpen, syscall.Args{A1: pathUVA})
	if fd < 0 {
		log.Fatal("SysOpen: failed")
	}

	message := "hello, kernel\n"
	if err := syscall.WriteStringToUser(user, as, writeBufUVA, message); err != defs.OK {
		log.Fatalf("writing message argument: %v", err)
	}
	written := syscall.Dispatch(k, user, as, syscall.SysWrite, syscall.Args{A1: writeBufUVA, A2: len(message), A3: fd})
	if written != len(message) {
		log.Fatalf("SysWrite: wrote %d of %d bytes", written, len(message))
	}
	if rc := syscall.Dispatch(k, user, as, syscall.SysClose, syscall.Args{A1: fd}); rc != 0 {
		log.Fatalf("SysClose: %d", rc)
	}

	fd = syscall.Dispatch(k, user, as, syscall.SysOpen, syscall.Args{A1: pathUVA})
	if fd < 0 {
		log.Fatal("SysOpen (reopen): failed")
	}
	readBufUVA := writeBufUVA + len(message) + 16
	n := syscall.Dispatch(k, user, as, syscall.SysRead, syscall.Args{A1: readBufUVA, A2: len(message), A3: fd})
	readBack := make([]byte, n)
	if err := syscall.ReadBufferFromUser(user, as, readBufUVA, readBack); err != defs.OK {
		log.Fatalf("reading back message: %v", err)
	}
	syscall.Dispatch(k, user, as, syscall.SysClose, syscall.Args{A1: fd})

	fmt.Fprintf(os.Stdout, "read back from file: %q\n", string(readBack))

	k.Exit(boot, pid, 0)
	status, err := k.Join(boot, pid)
	if err != defs.OK {
		log.Fatalf("Join: %v", err)
	}
	log.WithField("status", status).Info("demo program exited")
}

// writeDemoProgram creates a minimal NOFF executable named "hello" whose
// code segment is a handful of zero bytes — enough for AddressSpace to
// size a page table and demand-load page 0, without an actual instruction
// simulator to execute it.
func writeDemoProgram(k *kernel.Kernel, caller *sched.Thread) defs.Err_t {
	code := make([]byte, k.Cfg.PageSize)
	header := noff.Header{
		Code: noff.Segment{Size: uint32(len(code)), VirtualAddr: 0, InFileAddr: noff.HeaderSize},
	}
	data := append(noff.Encode(header), code...)

	if err := k.FS.Create(caller, "hello", len(data)); err != defs.OK {
		return err
	}
	f, err := k.FS.Open(caller, "hello")
	if err != defs.OK {
		return err
	}
	defer f.Close(caller)
	if n := f.Write(caller, data); n != len(data) {
		return defs.EFAULT
	}
	return defs.OK
}
