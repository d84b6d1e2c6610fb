package fs

import (
	"bytes"
	"sync"
	"testing"

	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/device"
	"github.com/go-simkernel/simkernel/sched"
)

func newTestFS(t *testing.T, numSectors int) (*FileSystem, *sched.Thread) {
	t.Helper()
	cfg := config.New(config.WithSectorSize(128, 14))
	disk := device.NewFakeDisk(numSectors, cfg.SectorSize, nil)
	sd := device.NewSynchDisk(disk, newTestScheduler())
	boot := sched.NewThread("boot", 0, 0, cfg.NumFileDescriptors)
	fs := NewFileSystem(cfg, sd, newTestScheduler(), boot)
	return fs, boot
}

func newTestScheduler() *sched.Scheduler {
	main := sched.NewThread("main", 0, 0, 2)
	return sched.NewScheduler(4, main)
}

// TestCreateOpenWriteReadRoundTrip exercises the round-trip law:
// data written then read back from the start must come back unchanged.
func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	fsys, caller := newTestFS(t, 200)

	if err := fsys.Create(caller, "greeting", 0); err != defs.OK {
		t.Fatalf("Create: %v", err)
	}

	of, err := fsys.Open(caller, "greeting")
	if err != defs.OK {
		t.Fatalf("Open: %v", err)
	}

	want := []byte("hello, kernel")
	if n := of.Write(caller, want); n != len(want) {
		t.Fatalf("Write = %d, want %d", n, len(want))
	}

	of.Seek(0)
	got := make([]byte, len(want))
	if n := of.Read(caller, got); n != len(want) {
		t.Fatalf("Read = %d, want %d", n, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %q, want %q", got, want)
	}

	if err := of.Close(caller); err != defs.OK {
		t.Fatalf("Close: %v", err)
	}
}

// TestZeroLengthFileReadsNothing covers the zero-length boundary.
func TestZeroLengthFileReadsNothing(t *testing.T) {
	fsys, caller := newTestFS(t, 200)
	if err := fsys.Create(caller, "empty", 0); err != defs.OK {
		t.Fatalf("Create: %v", err)
	}
	of, err := fsys.Open(caller, "empty")
	if err != defs.OK {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 16)
	if n := of.Read(caller, buf); n != 0 {
		t.Fatalf("Read on empty file = %d, want 0", n)
	}
}

// TestIndirectionBoundary writes across the point where a FileHeader
// outgrows its direct capacity and must allocate a tail header, then
// reads the whole thing back.
func TestIndirectionBoundary(t *testing.T) {
	fsys, caller := newTestFS(t, 400)
	cfg := config.New(config.WithSectorSize(128, 14))
	direct := directCapacity(cfg)
	size := (direct + 3) * cfg.SectorSize // spills three sectors into the tail

	if err := fsys.Create(caller, "big", size); err != defs.OK {
		t.Fatalf("Create: %v", err)
	}
	of, err := fsys.Open(caller, "big")
	if err != defs.OK {
		t.Fatalf("Open: %v", err)
	}

	want := make([]byte, size)
	for i := range want {
		want[i] = byte(i)
	}
	if n := of.Write(caller, want); n != size {
		t.Fatalf("Write = %d, want %d", n, size)
	}
	of.Seek(0)
	got := make([]byte, size)
	if n := of.Read(caller, got); n != size {
		t.Fatalf("Read = %d, want %d", n, size)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("data crossing the indirection boundary did not round-trip")
	}
}

// TestRemoveWhileOpenDefersStorageRelease covers remove-while-open: the
// first Remove succeeds and hides the file from
// future Opens; the handle already open keeps working until Close, which
// then actually frees the storage.
func TestRemoveWhileOpenDefersStorageRelease(t *testing.T) {
	fsys, caller := newTestFS(t, 200)
	if err := fsys.Create(caller, "doomed", 0); err != defs.OK {
		t.Fatalf("Create: %v", err)
	}
	of, err := fsys.Open(caller, "doomed")
	if err != defs.OK {
		t.Fatalf("Open: %v", err)
	}

	if err := fsys.Remove(caller, "doomed"); err != defs.OK {
		t.Fatalf("first Remove: %v", err)
	}
	if err := fsys.Remove(caller, "doomed"); err == defs.OK {
		t.Fatal("second Remove on an already-removed name should fail")
	}
	if _, err := fsys.Open(caller, "doomed"); err == defs.OK {
		t.Fatal("Open after Remove should fail")
	}

	want := []byte("still alive")
	if n := of.Write(caller, want); n != len(want) {
		t.Fatalf("Write on removed-but-open handle = %d, want %d", n, len(want))
	}
	of.Seek(0)
	got := make([]byte, len(want))
	if n := of.Read(caller, got); n != len(want) || !bytes.Equal(got, want) {
		t.Fatal("removed-but-open handle did not behave like a normal file")
	}

	if err := of.Close(caller); err != defs.OK {
		t.Fatalf("Close: %v", err)
	}

	for _, name := range fsys.List(caller) {
		if name == "doomed" {
			t.Fatal("removed file still listed after last close")
		}
	}
}

// TestConcurrentReaders: many threads opening and reading the same file
// at once must all see the same content.
func TestConcurrentReaders(t *testing.T) {
	fsys, boot := newTestFS(t, 200)
	content := []byte("shared content for concurrent readers")
	if err := fsys.Create(boot, "shared", 0); err != defs.OK {
		t.Fatalf("Create: %v", err)
	}
	setup, err := fsys.Open(boot, "shared")
	if err != defs.OK {
		t.Fatalf("Open: %v", err)
	}
	setup.Write(boot, content)
	setup.Close(boot)

	const readers = 8
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := sched.NewThread("reader", 0, i+1, 4)
			of, err := fsys.Open(caller, "shared")
			if err != defs.OK {
				errs <- err
				return
			}
			defer of.Close(caller)
			buf := make([]byte, len(content))
			if n := of.Read(caller, buf); n != len(content) || !bytes.Equal(buf, content) {
				errs <- defs.EINVAL
				return
			}
			errs <- defs.OK
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != defs.OK {
			t.Fatalf("reader failed: %v", err)
		}
	}
}

// TestConcurrentWritersDoNotCorruptEachOther: disjoint-range writers
// racing against a shared file must each land their own bytes without
// tearing.
func TestConcurrentWritersDoNotCorruptEachOther(t *testing.T) {
	fsys, boot := newTestFS(t, 200)
	const stride = 16
	const writers = 4
	size := stride * writers
	if err := fsys.Create(boot, "stripes", size); err != defs.OK {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := sched.NewThread("writer", 0, i+1, 4)
			of, err := fsys.Open(caller, "stripes")
			if err != defs.OK {
				t.Errorf("Open: %v", err)
				return
			}
			defer of.Close(caller)
			chunk := bytes.Repeat([]byte{byte('A' + i)}, stride)
			of.WriteAt(caller, chunk, int64(i*stride))
		}(i)
	}
	wg.Wait()

	reader := sched.NewThread("verify", 0, 99, 4)
	of, err := fsys.Open(reader, "stripes")
	if err != defs.OK {
		t.Fatalf("Open: %v", err)
	}
	got := make([]byte, size)
	of.Read(reader, got)
	for i := 0; i < writers; i++ {
		chunk := got[i*stride : (i+1)*stride]
		want := bytes.Repeat([]byte{byte('A' + i)}, stride)
		if !bytes.Equal(chunk, want) {
			t.Fatalf("stripe %d = %q, want %q", i, chunk, want)
		}
	}
}
