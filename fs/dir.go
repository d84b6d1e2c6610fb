package fs

import (
	"encoding/binary"

	"github.com/go-simkernel/simkernel/config"
)

// DirectoryEntry is one packed record in the directory file: a fixed-width
// name, the inode sector it names, and an in-use bit. Hierarchical mode
// is not implemented — FileSystem operates on a single flat directory;
// there is exactly one working directory, the root.
type DirectoryEntry struct {
	InUse  bool
	Name   string
	Sector uint32
}

// Directory is the in-memory image of the directory file: an ordered,
// fixed-capacity array of DirectoryEntry records.
type Directory struct {
	cfg     *config.Config
	entries []DirectoryEntry
}

// entryWidth is the packed on-disk size of one DirectoryEntry: 1 byte
// in-use flag, cfg.FileNameMaxLen name bytes, 4 bytes sector number.
func entryWidth(cfg *config.Config) int {
	return 1 + cfg.FileNameMaxLen + 4
}

// NewDirectory builds an empty Directory with room for capacity entries.
// Its encoded size is capacity*entryWidth bytes, which may span several
// sectors.
func NewDirectory(cfg *config.Config, capacity int) *Directory {
	return &Directory{cfg: cfg, entries: make([]DirectoryEntry, capacity)}
}

// Capacity returns the maximum number of entries this Directory can hold.
func (d *Directory) Capacity() int {
	return len(d.entries)
}

// Find returns the in-use entry named name, its index, and whether it was
// found.
func (d *Directory) Find(name string) (DirectoryEntry, int, bool) {
	for i, e := range d.entries {
		if e.InUse && e.Name == name {
			return e, i, true
		}
	}
	return DirectoryEntry{}, -1, false
}

// Add inserts a new in-use entry for name at the first free slot. Returns
// false if name already exists or the directory is full.
func (d *Directory) Add(name string, sector uint32) bool {
	if _, _, found := d.Find(name); found {
		return false
	}
	for i, e := range d.entries {
		if !e.InUse {
			d.entries[i] = DirectoryEntry{InUse: true, Name: name, Sector: sector}
			return true
		}
	}
	return false
}

// Remove clears the entry named name. Returns false if not found.
func (d *Directory) Remove(name string) bool {
	_, i, found := d.Find(name)
	if !found {
		return false
	}
	d.entries[i] = DirectoryEntry{}
	return true
}

// List returns the names of every in-use entry.
func (d *Directory) List() []string {
	var names []string
	for _, e := range d.entries {
		if e.InUse {
			names = append(names, e.Name)
		}
	}
	return names
}

// Encode packs the Directory into a byte slice suitable for writing
// through an OpenFile over the directory's FileHeader.
func (d *Directory) Encode() []byte {
	width := entryWidth(d.cfg)
	buf := make([]byte, width*len(d.entries))
	for i, e := range d.entries {
		off := i * width
		if e.InUse {
			buf[off] = 1
		}
		nameBytes := []byte(e.Name)
		if len(nameBytes) > d.cfg.FileNameMaxLen {
			nameBytes = nameBytes[:d.cfg.FileNameMaxLen]
		}
		copy(buf[off+1:off+1+d.cfg.FileNameMaxLen], nameBytes)
		binary.LittleEndian.PutUint32(buf[off+1+d.cfg.FileNameMaxLen:off+width], e.Sector)
	}
	return buf
}

// Decode rebuilds the Directory's entries from bytes produced by Encode.
// The Directory must already have the right capacity (NewDirectory with
// len(buf)/entryWidth).
func (d *Directory) Decode(buf []byte) {
	width := entryWidth(d.cfg)
	n := len(buf) / width
	if n > len(d.entries) {
		n = len(d.entries)
	}
	for i := 0; i < n; i++ {
		off := i * width
		inUse := buf[off] != 0
		nameEnd := off + 1 + d.cfg.FileNameMaxLen
		name := string(buf[off+1 : nameEnd])
		for j := len(name) - 1; j >= 0; j-- {
			if name[j] != 0 {
				name = name[:j+1]
				break
			}
			if j == 0 {
				name = ""
			}
		}
		sector := binary.LittleEndian.Uint32(buf[nameEnd : nameEnd+4])
		d.entries[i] = DirectoryEntry{InUse: inUse, Name: name, Sector: sector}
	}
}
