package device

import (
	"github.com/go-simkernel/simkernel/sched"
	simsync "github.com/go-simkernel/simkernel/sync"
)

// SynchDisk turns the asynchronous Disk interface into a blocking one: a
// caller's ReadSector/WriteSector blocks on the completion channel until
// it fires. A single request lock serializes concurrent
// callers the way the underlying controller only services one
// outstanding request at a time.
type SynchDisk struct {
	disk Disk
	lock *simsync.Lock
}

// NewSynchDisk wraps disk with the blocking protocol, using sc for the
// request lock's underlying scheduler contract.
func NewSynchDisk(disk Disk, sc sched.Contract) *SynchDisk {
	return &SynchDisk{
		disk: disk,
		lock: simsync.NewLock("synchdisk", sc),
	}
}

func (d *SynchDisk) NumSectors() int { return d.disk.NumSectors() }
func (d *SynchDisk) SectorSize() int { return d.disk.SectorSize() }

// ReadSector blocks caller until sector's contents are in buf.
func (d *SynchDisk) ReadSector(caller *sched.Thread, sector int, buf []byte) error {
	d.lock.Acquire(caller)
	defer d.lock.Release(caller)
	return <-d.disk.ReadSectorAsync(sector, buf)
}

// WriteSector blocks caller until buf has been written to sector.
func (d *SynchDisk) WriteSector(caller *sched.Thread, sector int, buf []byte) error {
	d.lock.Acquire(caller)
	defer d.lock.Release(caller)
	return <-d.disk.WriteSectorAsync(sector, buf)
}

// SynchConsole turns the asynchronous Console interface into a blocking
// one, with two independent locks — one per direction — so a reader
// blocked waiting for input never holds up a concurrent writer, and vice
// versa.
type SynchConsole struct {
	console   Console
	readLock  *simsync.Lock
	writeLock *simsync.Lock
}

// NewSynchConsole wraps console with the blocking, per-direction-locked
// protocol.
func NewSynchConsole(console Console, sc sched.Contract) *SynchConsole {
	return &SynchConsole{
		console:   console,
		readLock:  simsync.NewLock("synchconsole.read", sc),
		writeLock: simsync.NewLock("synchconsole.write", sc),
	}
}

// GetChar blocks caller until one input byte is available.
func (c *SynchConsole) GetChar(caller *sched.Thread) byte {
	c.readLock.Acquire(caller)
	defer c.readLock.Release(caller)
	return <-c.console.GetCharAsync()
}

// PutChar blocks caller until b has been written to the output stream.
func (c *SynchConsole) PutChar(caller *sched.Thread, b byte) {
	c.writeLock.Acquire(caller)
	defer c.writeLock.Release(caller)
	<-c.console.PutCharAsync(b)
}
