package fs

import (
	"github.com/go-simkernel/simkernel/bitmap"
	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
	simsync "github.com/go-simkernel/simkernel/sync"
)

// Fixed inode sectors for the two system files.
const (
	bitmapHeaderSector    = 0
	directoryHeaderSector = 1
)

// directoryCapacity bounds how many files the flat root directory can
// hold. Fixed rather than derived from disk size to keep the directory
// file's own size (and thus its FileHeader's indirection needs) small and
// predictable.
const directoryCapacity = 64

// FileSystemEntry is the FileSystem's bookkeeping for one live file:
// name, inode sector, open-count, pending-removal flag, and the RWMutex
// guarding concurrent OpenFile access to its header and data.
type FileSystemEntry struct {
	Name           string
	Sector         uint32
	openCount      int
	pendingRemoval bool
	rw             *simsync.RWMutex
	header         *FileHeader
}

// FileSystem implements Create/Open/Remove/List, maintaining the
// free-sector bitmap and root directory as the two system files at fixed
// inode sectors 0 and 1. No write-ahead log and no block cache (see
// DESIGN.md for why); every operation goes straight through to disk.
type FileSystem struct {
	cfg  *config.Config
	disk SectorDevice
	sc   sched.Contract

	dirLock *simsync.Lock // serializes all directory and bitmap mutation

	bitmap       *bitmap.Bitmap
	bitmapHeader *FileHeader
	directory    *Directory
	directoryHdr *FileHeader

	entries map[uint32]*FileSystemEntry // keyed by inode sector, live while open or pending removal
}

// NewFileSystem formats a fresh FileSystem over disk: it builds the
// in-memory free-sector bitmap and root directory, allocates their
// FileHeaders at their fixed sectors, and persists both. Crash recovery
// (re-scanning an existing disk image) is out of scope; every run starts
// from a freshly formatted disk.
func NewFileSystem(cfg *config.Config, disk SectorDevice, sc sched.Contract, caller *sched.Thread) *FileSystem {
	fs := &FileSystem{
		cfg:     cfg,
		disk:    disk,
		sc:      sc,
		dirLock: simsync.NewLock("fs.dir", sc),
		bitmap:  bitmap.New(uint64(disk.NumSectors())),
		entries: make(map[uint32]*FileSystemEntry),
	}

	fs.bitmap.Mark(bitmapHeaderSector)
	fs.bitmap.Mark(directoryHeaderSector)

	fs.directory = NewDirectory(cfg, directoryCapacity)
	dirBytes := fs.directory.Encode()
	fs.directoryHdr = NewFileHeader(cfg)
	if !fs.directoryHdr.Allocate(disk, caller, fs.bitmap, len(dirBytes)) {
		defs.Raise("NewFileSystem", "cannot allocate root directory storage")
	}
	fs.writeThroughHeader(caller, fs.directoryHdr, dirBytes)
	writeHeader(disk, caller, fs.directoryHdr, directoryHeaderSector)

	bmBytes := fs.bitmap.Serialize(cfg.SectorSize)
	fs.bitmapHeader = NewFileHeader(cfg)
	if !fs.bitmapHeader.Allocate(disk, caller, fs.bitmap, len(bmBytes)) {
		defs.Raise("NewFileSystem", "cannot allocate free-sector bitmap storage")
	}
	// Allocating the bitmap file's own data sectors changed the bitmap's
	// contents, so re-serialize before the first persist.
	bmBytes = fs.bitmap.Serialize(cfg.SectorSize)
	fs.writeThroughHeader(caller, fs.bitmapHeader, bmBytes)
	writeHeader(disk, caller, fs.bitmapHeader, bitmapHeaderSector)

	return fs
}

// writeThroughHeader writes data to h's data sectors, sector by sector,
// via ByteToSector — used for the two system files, which have no
// FileSystemEntry/RWMutex of their own since only FileSystem internals
// ever touch them directly.
func (fs *FileSystem) writeThroughHeader(caller *sched.Thread, h *FileHeader, data []byte) {
	for off := 0; off < len(data); off += fs.cfg.SectorSize {
		sector, err := h.ByteToSector(fs.disk, caller, off)
		if err != nil {
			defs.Raise("FileSystem.writeThroughHeader", err.Error())
		}
		buf := make([]byte, fs.cfg.SectorSize)
		end := off + fs.cfg.SectorSize
		if end > len(data) {
			end = len(data)
		}
		copy(buf, data[off:end])
		if err := fs.disk.WriteSector(caller, sector, buf); err != nil {
			defs.Raise("FileSystem.writeThroughHeader", err.Error())
		}
	}
}

// persistDirectory re-serializes and writes the in-memory directory back
// through its FileHeader. Must be called with dirLock held.
func (fs *FileSystem) persistDirectory(caller *sched.Thread) {
	fs.writeThroughHeader(caller, fs.directoryHdr, fs.directory.Encode())
	writeHeader(fs.disk, caller, fs.directoryHdr, directoryHeaderSector)
}

// persistBitmap re-serializes and writes the in-memory bitmap back
// through its FileHeader. Must be called with dirLock held.
func (fs *FileSystem) persistBitmap(caller *sched.Thread) {
	fs.writeThroughHeader(caller, fs.bitmapHeader, fs.bitmap.Serialize(fs.cfg.SectorSize))
	writeHeader(fs.disk, caller, fs.bitmapHeader, bitmapHeaderSector)
}

// Create allocates a new, empty-or-sized file named name.
func (fs *FileSystem) Create(caller *sched.Thread, name string, size int) defs.Err_t {
	fs.dirLock.Acquire(caller)
	defer fs.dirLock.Release(caller)

	if _, _, found := fs.directory.Find(name); found {
		return defs.EEXIST
	}

	sector, ok := fs.bitmap.FindAndMark()
	if !ok {
		return defs.ENOSPC
	}

	header := NewFileHeader(fs.cfg)
	if !header.Allocate(fs.disk, caller, fs.bitmap, size) {
		fs.bitmap.Unmark(sector)
		return defs.ENOSPC
	}
	if err := writeHeader(fs.disk, caller, header, int(sector)); err != nil {
		header.Deallocate(fs.disk, caller, fs.bitmap)
		fs.bitmap.Unmark(sector)
		return defs.ENOSPC
	}

	if !fs.directory.Add(name, uint32(sector)) {
		header.Deallocate(fs.disk, caller, fs.bitmap)
		fs.bitmap.Unmark(sector)
		return defs.ENOSPC
	}

	fs.persistDirectory(caller)
	fs.persistBitmap(caller)
	return defs.OK
}

// entryFor returns (creating if necessary) the FileSystemEntry bookkeeping
// a live inode sector. Must be called with dirLock held.
func (fs *FileSystem) entryFor(caller *sched.Thread, name string, sector uint32) *FileSystemEntry {
	if e, ok := fs.entries[sector]; ok {
		return e
	}
	header, err := readHeader(fs.disk, caller, fs.cfg, int(sector))
	if err != nil {
		defs.Raise("FileSystem.entryFor", err.Error())
	}
	e := &FileSystemEntry{
		Name:   name,
		Sector: sector,
		rw:     simsync.NewRWMutex("file."+name, fs.sc),
		header: header,
	}
	fs.entries[sector] = e
	return e
}

// Open locates name and returns an independent OpenFile handle over it.
func (fs *FileSystem) Open(caller *sched.Thread, name string) (*OpenFile, defs.Err_t) {
	fs.dirLock.Acquire(caller)
	entry, _, found := fs.directory.Find(name)
	if !found {
		fs.dirLock.Release(caller)
		return nil, defs.ENOENT
	}
	fse := fs.entryFor(caller, name, entry.Sector)
	fse.openCount++
	fs.dirLock.Release(caller)

	return &OpenFile{fs: fs, entry: fse}, defs.OK
}

// Remove marks name pending removal: if no handle is
// open, storage is freed immediately; otherwise the directory entry is
// cleared but the inode and data remain until the last open handle
// closes. A second Remove after the first succeeds reports ENOENT,
// matching the "succeed-no-op" policy's first-call-only success.
func (fs *FileSystem) Remove(caller *sched.Thread, name string) defs.Err_t {
	fs.dirLock.Acquire(caller)
	defer fs.dirLock.Release(caller)

	entry, _, found := fs.directory.Find(name)
	if !found {
		return defs.ENOENT
	}
	fs.directory.Remove(name)
	fs.persistDirectory(caller)

	fse, open := fs.entries[entry.Sector]
	if !open || fse.openCount == 0 {
		if open {
			delete(fs.entries, entry.Sector)
		}
		fs.freeInode(caller, entry.Sector)
		fs.persistBitmap(caller)
		return defs.OK
	}

	fse.pendingRemoval = true
	return defs.OK
}

// freeInode deallocates an inode's FileHeader chain and returns its
// sector to the free pool. Must be called with dirLock held.
func (fs *FileSystem) freeInode(caller *sched.Thread, sector uint32) {
	header, err := readHeader(fs.disk, caller, fs.cfg, int(sector))
	if err == nil {
		header.Deallocate(fs.disk, caller, fs.bitmap)
	}
	fs.bitmap.Unmark(uint64(sector))
}

// closeHandle is called by OpenFile.Close: decrements the entry's
// open-count and, if it reaches zero while pending removal, frees the
// backing storage.
func (fs *FileSystem) closeHandle(caller *sched.Thread, fse *FileSystemEntry) {
	fs.dirLock.Acquire(caller)
	defer fs.dirLock.Release(caller)

	fse.openCount--
	if fse.openCount == 0 && fse.pendingRemoval {
		delete(fs.entries, fse.Sector)
		fs.freeInode(caller, fse.Sector)
		fs.persistBitmap(caller)
	}
}

// List returns the names of every live file.
func (fs *FileSystem) List(caller *sched.Thread) []string {
	fs.dirLock.Acquire(caller)
	defer fs.dirLock.Release(caller)
	return fs.directory.List()
}
