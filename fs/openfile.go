package fs

import (
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
)

// OpenFile is an independent handle onto a file: its own 64-bit seek
// position over a FileHeader shared (under entry.rw) with every other
// handle on the same file. Each OpenFile method applies entry.rw's
// readers/writer policy itself: reads take the read side, writes the
// write side.
type OpenFile struct {
	fs    *FileSystem
	entry *FileSystemEntry
	pos   int64
}

// Seek repositions the handle's read/write cursor. Negative positions are
// clamped to zero; positions beyond the current length are allowed (a
// subsequent Write there grows the file; a subsequent Read returns 0).
func (of *OpenFile) Seek(pos int64) {
	if pos < 0 {
		pos = 0
	}
	of.pos = pos
}

// Read reads up to len(buf) bytes starting at the handle's current
// position, advancing it by the number of bytes actually read.
func (of *OpenFile) Read(caller *sched.Thread, buf []byte) int {
	of.entry.rw.RLock(caller)
	defer of.entry.rw.RUnlock(caller)
	n := of.readAtLocked(caller, buf, of.pos)
	of.pos += int64(n)
	return n
}

// ReadAt reads up to len(buf) bytes starting at pos, without touching the
// handle's own seek position.
func (of *OpenFile) ReadAt(caller *sched.Thread, buf []byte, pos int64) int {
	of.entry.rw.RLock(caller)
	defer of.entry.rw.RUnlock(caller)
	return of.readAtLocked(caller, buf, pos)
}

// readAtLocked performs a sector-by-sector read, clipped to the file's
// current length. Must be called with entry.rw held (for read or write).
func (of *OpenFile) readAtLocked(caller *sched.Thread, buf []byte, pos int64) int {
	length := int64(of.entry.header.Length())
	if pos >= length {
		return 0
	}
	want := len(buf)
	if pos+int64(want) > length {
		want = int(length - pos)
	}

	sectorSize := of.fs.cfg.SectorSize
	scratch := make([]byte, sectorSize)
	read := 0
	for read < want {
		offset := pos + int64(read)
		sector, err := of.entry.header.ByteToSector(of.fs.disk, caller, int(offset))
		if err != nil {
			break
		}
		if err := of.fs.disk.ReadSector(caller, sector, scratch); err != nil {
			break
		}
		sectorOff := int(offset) % sectorSize
		n := sectorSize - sectorOff
		if n > want-read {
			n = want - read
		}
		copy(buf[read:read+n], scratch[sectorOff:sectorOff+n])
		read += n
	}
	return read
}

// Write writes len(buf) bytes at the handle's current position, growing
// the file via Extend against the free-sector bitmap if needed, and
// advances the position by the number of bytes actually written.
func (of *OpenFile) Write(caller *sched.Thread, buf []byte) int {
	of.entry.rw.Lock(caller)
	defer of.entry.rw.Unlock(caller)
	n := of.writeAtLocked(caller, buf, of.pos)
	of.pos += int64(n)
	return n
}

// WriteAt writes len(buf) bytes at pos without touching the handle's own
// seek position.
func (of *OpenFile) WriteAt(caller *sched.Thread, buf []byte, pos int64) int {
	of.entry.rw.Lock(caller)
	defer of.entry.rw.Unlock(caller)
	return of.writeAtLocked(caller, buf, pos)
}

// writeAtLocked grows the file first if the write extends past its
// current length, then writes sector by sector. On allocation failure
// the write is truncated to what fits in the
// file's current (unextended) length. Must be called with entry.rw held
// for writing.
func (of *OpenFile) writeAtLocked(caller *sched.Thread, buf []byte, pos int64) int {
	header := of.entry.header
	want := len(buf)
	needed := pos + int64(want)
	if needed > int64(header.Length()) {
		grow := int(needed - int64(header.Length()))
		if !header.Extend(of.fs.disk, caller, of.fs.bitmap, grow) {
			available := int64(header.Length()) - pos
			if available < 0 {
				available = 0
			}
			if int64(want) > available {
				want = int(available)
			}
		} else {
			of.fs.dirLock.Acquire(caller)
			writeHeader(of.fs.disk, caller, header, int(of.entry.Sector))
			of.fs.persistBitmap(caller)
			of.fs.dirLock.Release(caller)
		}
	}
	if want <= 0 {
		return 0
	}

	sectorSize := of.fs.cfg.SectorSize
	scratch := make([]byte, sectorSize)
	written := 0
	for written < want {
		offset := pos + int64(written)
		sector, err := header.ByteToSector(of.fs.disk, caller, int(offset))
		if err != nil {
			break
		}
		sectorOff := int(offset) % sectorSize
		n := sectorSize - sectorOff
		if n > want-written {
			n = want - written
		}
		if n < sectorSize {
			if err := of.fs.disk.ReadSector(caller, sector, scratch); err != nil {
				break
			}
		}
		copy(scratch[sectorOff:sectorOff+n], buf[written:written+n])
		if err := of.fs.disk.WriteSector(caller, sector, scratch); err != nil {
			break
		}
		written += n
	}
	return written
}

// Length returns the file's current byte length.
func (of *OpenFile) Length(caller *sched.Thread) int {
	of.entry.rw.RLock(caller)
	defer of.entry.rw.RUnlock(caller)
	return of.entry.header.Length()
}

// Close releases this handle. If it was the last handle on a file pending
// removal, the file's storage is freed.
func (of *OpenFile) Close(caller *sched.Thread) defs.Err_t {
	of.fs.closeHandle(caller, of.entry)
	return defs.OK
}
