package syscall

import (
	"testing"

	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/device"
	"github.com/go-simkernel/simkernel/kernel"
	"github.com/go-simkernel/simkernel/noff"
	"github.com/go-simkernel/simkernel/sched"
)

// newTestKernel boots a Kernel over fake devices and Execs a one-page
// executable, returning the user thread and AddressSpace a test can
// dispatch syscalls against.
func newTestKernel(t *testing.T) (*kernel.Kernel, *sched.Thread, *sched.Thread) {
	t.Helper()
	cfg := config.New(config.WithPhysPages(8))
	disk := device.NewFakeDisk(400, cfg.SectorSize, nil)
	console := device.NewFakeConsole()
	boot := sched.NewThread("boot", 0, 0, cfg.NumFileDescriptors)
	k := kernel.New(cfg, disk, console, boot, nil)

	code := make([]byte, cfg.PageSize)
	header := noff.Header{
		Code: noff.Segment{Size: uint32(len(code)), VirtualAddr: 0, InFileAddr: noff.HeaderSize},
	}
	data := append(noff.Encode(header), code...)
	if err := k.FS.Create(boot, "prog", len(data)); err != defs.OK {
		t.Fatalf("Create prog: %v", err)
	}
	f, err := k.FS.Open(boot, "prog")
	if err != defs.OK {
		t.Fatalf("Open prog: %v", err)
	}
	if n := f.Write(boot, data); n != len(data) {
		t.Fatalf("Write prog: %d of %d bytes", n, len(data))
	}
	f.Close(boot)

	pid, err := k.Exec(boot, "prog")
	if err != defs.OK {
		t.Fatalf("Exec: %v", err)
	}
	user := sched.NewThread("prog", 0, pid, cfg.NumFileDescriptors)
	return k, boot, user
}

// TestCreateOpenWriteReadClose drives a full round trip through the
// syscall table: Create, Open, Write, Close, reopen, Read, Close.
func TestCreateOpenWriteReadClose(t *testing.T) {
	k, _, user := newTestKernel(t)
	as, ok := k.AddressSpace(user.Pid)
	if !ok {
		t.Fatal("no AddressSpace for user pid")
	}

	const pathUVA = 256
	if err := WriteStringToUser(user, as, pathUVA, "greeting"); err != defs.OK {
		t.Fatalf("WriteStringToUser path: %v", err)
	}
	if rc := Dispatch(k, user, as, SysCreate, Args{A1: pathUVA}); rc != int(defs.OK) {
		t.Fatalf("SysCreate = %d, want OK", rc)
	}

	fd := Dispatch(k, user, as, SysOpen, Args{A1: pathUVA})
	if fd < 2 {
		t.Fatalf("SysOpen = %d, want fd >= 2", fd)
	}

	const writeBufUVA = 320
	message := "hello, kernel"
	if err := WriteStringToUser(user, as, writeBufUVA, message); err != defs.OK {
		t.Fatalf("WriteStringToUser message: %v", err)
	}
	if n := Dispatch(k, user, as, SysWrite, Args{A1: writeBufUVA, A2: len(message), A3: fd}); n != len(message) {
		t.Fatalf("SysWrite = %d, want %d", n, len(message))
	}
	if rc := Dispatch(k, user, as, SysClose, Args{A1: fd}); rc != 0 {
		t.Fatalf("SysClose = %d, want 0", rc)
	}

	fd = Dispatch(k, user, as, SysOpen, Args{A1: pathUVA})
	if fd < 2 {
		t.Fatalf("reopen SysOpen = %d, want fd >= 2", fd)
	}
	const readBufUVA = 512
	n := Dispatch(k, user, as, SysRead, Args{A1: readBufUVA, A2: len(message), A3: fd})
	if n != len(message) {
		t.Fatalf("SysRead = %d, want %d", n, len(message))
	}
	got := make([]byte, n)
	if err := ReadBufferFromUser(user, as, readBufUVA, got); err != defs.OK {
		t.Fatalf("ReadBufferFromUser: %v", err)
	}
	if string(got) != message {
		t.Fatalf("read back %q, want %q", got, message)
	}
	if rc := Dispatch(k, user, as, SysClose, Args{A1: fd}); rc != 0 {
		t.Fatalf("SysClose = %d, want 0", rc)
	}
}

// TestCloseUnknownFdReturnsENOENT covers sysClose's guard against an
// fd the caller never opened.
func TestCloseUnknownFdReturnsENOENT(t *testing.T) {
	k, _, user := newTestKernel(t)
	as, _ := k.AddressSpace(user.Pid)
	if rc := Dispatch(k, user, as, SysClose, Args{A1: 2}); rc != int(defs.ENOENT) {
		t.Fatalf("SysClose on unopened fd = %d, want ENOENT", rc)
	}
}

// TestConsoleWrite covers sysWrite's fixed console output descriptor
// (fd 1, reserved for console output).
func TestConsoleWrite(t *testing.T) {
	k, _, user := newTestKernel(t)
	as, _ := k.AddressSpace(user.Pid)

	const bufUVA = 256
	message := "hi"
	if err := WriteStringToUser(user, as, bufUVA, message); err != defs.OK {
		t.Fatalf("WriteStringToUser: %v", err)
	}
	if n := Dispatch(k, user, as, SysWrite, Args{A1: bufUVA, A2: len(message), A3: ConsoleOutFd}); n != len(message) {
		t.Fatalf("SysWrite to console = %d, want %d", n, len(message))
	}
}

// TestWriteOverMaxWriteSizeIsClamped covers sysWrite's clamp to
// Kernel.MaxWriteSize. Uses its own small-MaxWriteSize kernel so the
// clamped size still fits inside the test address space.
func TestWriteOverMaxWriteSizeIsClamped(t *testing.T) {
	cfg := config.New(config.WithPhysPages(8))
	cfg.MaxWriteSize = 8
	disk := device.NewFakeDisk(400, cfg.SectorSize, nil)
	console := device.NewFakeConsole()
	boot := sched.NewThread("boot", 0, 0, cfg.NumFileDescriptors)
	k := kernel.New(cfg, disk, console, boot, nil)

	code := make([]byte, cfg.PageSize)
	header := noff.Header{
		Code: noff.Segment{Size: uint32(len(code)), VirtualAddr: 0, InFileAddr: noff.HeaderSize},
	}
	data := append(noff.Encode(header), code...)
	if err := k.FS.Create(boot, "prog", len(data)); err != defs.OK {
		t.Fatalf("Create prog: %v", err)
	}
	f, err := k.FS.Open(boot, "prog")
	if err != defs.OK {
		t.Fatalf("Open prog: %v", err)
	}
	if n := f.Write(boot, data); n != len(data) {
		t.Fatalf("Write prog: %d of %d bytes", n, len(data))
	}
	f.Close(boot)

	pid, err := k.Exec(boot, "prog")
	if err != defs.OK {
		t.Fatalf("Exec: %v", err)
	}
	user := sched.NewThread("prog", 0, pid, cfg.NumFileDescriptors)
	as, _ := k.AddressSpace(pid)

	const pathUVA = 256
	if err := WriteStringToUser(user, as, pathUVA, "f"); err != defs.OK {
		t.Fatalf("WriteStringToUser: %v", err)
	}
	if rc := Dispatch(k, user, as, SysCreate, Args{A1: pathUVA}); rc != int(defs.OK) {
		t.Fatalf("SysCreate: %d", rc)
	}
	fd := Dispatch(k, user, as, SysOpen, Args{A1: pathUVA})
	if fd < 2 {
		t.Fatalf("SysOpen: %d", fd)
	}

	const bufUVA = 320
	n := Dispatch(k, user, as, SysWrite, Args{A1: bufUVA, A2: cfg.MaxWriteSize + 1, A3: fd})
	if n != cfg.MaxWriteSize {
		t.Fatalf("SysWrite over MaxWriteSize = %d, want clamp to %d", n, cfg.MaxWriteSize)
	}
}
