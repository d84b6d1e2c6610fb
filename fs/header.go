package fs

import (
	"encoding/binary"

	"github.com/go-simkernel/simkernel/bitmap"
	"github.com/go-simkernel/simkernel/config"
	"github.com/go-simkernel/simkernel/sched"
)

// RawFileHeader is the on-disk layout of a FileHeader sector: little-
// endian numBytes, numSectors, then NumDirect data-sector numbers, the
// last of which is overloaded as a tail-header sector number once the
// file outgrows direct capacity.
type RawFileHeader struct {
	NumBytes    uint32
	NumSectors  uint32
	DataSectors []uint32
}

// FileHeader wraps a RawFileHeader with allocate/extend/deallocate/
// translate operations, restricted to a single level of indirection: a
// direct block list plus one tail header, never a deeper chain.
type FileHeader struct {
	cfg *config.Config
	Raw RawFileHeader
}

// NewFileHeader builds an empty FileHeader sized for cfg (NumDirect data
// slots, all zero).
func NewFileHeader(cfg *config.Config) *FileHeader {
	return &FileHeader{
		cfg: cfg,
		Raw: RawFileHeader{DataSectors: make([]uint32, cfg.NumDirect)},
	}
}

// Encode serializes the header into exactly one SectorSize-byte sector,
// little-endian, by explicit field-at-a-time encoding rather than
// reinterpreting the struct's memory layout, so the on-disk format
// doesn't depend on Go's struct padding or host endianness.
func (h *FileHeader) Encode() []byte {
	buf := make([]byte, h.cfg.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Raw.NumBytes)
	binary.LittleEndian.PutUint32(buf[4:8], h.Raw.NumSectors)
	off := 8
	for i := 0; i < h.cfg.NumDirect; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], h.Raw.DataSectors[i])
		off += 4
	}
	return buf
}

// Decode populates h from a sector previously produced by Encode.
func (h *FileHeader) Decode(buf []byte) {
	h.Raw.NumBytes = binary.LittleEndian.Uint32(buf[0:4])
	h.Raw.NumSectors = binary.LittleEndian.Uint32(buf[4:8])
	if h.Raw.DataSectors == nil {
		h.Raw.DataSectors = make([]uint32, h.cfg.NumDirect)
	}
	off := 8
	for i := 0; i < h.cfg.NumDirect; i++ {
		h.Raw.DataSectors[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
}

// readHeader loads and decodes the FileHeader stored at sector.
func readHeader(disk SectorDevice, caller *sched.Thread, cfg *config.Config, sector int) (*FileHeader, error) {
	buf := make([]byte, cfg.SectorSize)
	if err := disk.ReadSector(caller, sector, buf); err != nil {
		return nil, err
	}
	h := NewFileHeader(cfg)
	h.Decode(buf)
	return h, nil
}

// writeHeader serializes h and writes it to sector.
func writeHeader(disk SectorDevice, caller *sched.Thread, h *FileHeader, sector int) error {
	return disk.WriteSector(caller, sector, h.Encode())
}

// rawSectorsFor computes ceil(numBytes/sectorSize), the number of data
// sectors a file of numBytes needs.
func rawSectorsFor(numBytes, sectorSize int) int {
	if numBytes <= 0 {
		return 0
	}
	return (numBytes + sectorSize - 1) / sectorSize
}

// directCapacity is the number of data sectors a single FileHeader can
// address directly: NumDirect slots minus the one reserved for the tail
// pointer once the file needs indirection. A tail header never itself
// indirects further, but it keeps the same NumDirect-1 direct budget as
// the root header rather than special-casing its last slot as an extra
// data sector — one capacity rule at every level instead of two.
func directCapacity(cfg *config.Config) int {
	return cfg.NumDirect - 1
}

// maxFileSectors is the largest raw_sectors a depth-1 FileHeader chain
// (one root header plus at most one tail header) can represent.
func maxFileSectors(cfg *config.Config) int {
	return 2 * directCapacity(cfg)
}

// Allocate sizes h for a size-byte file, allocating data sectors (and, if
// needed, one tail header and its data sectors) against bm. Returns false
// without mutating bm's committed state if size exceeds what a depth-1
// chain can represent or the bitmap lacks enough free sectors; any
// sectors reserved before the failing step are unmarked so a failed
// Allocate never leaks bits in the free-sector bitmap.
func (h *FileHeader) Allocate(disk SectorDevice, caller *sched.Thread, bm *bitmap.Bitmap, size int) bool {
	raw := rawSectorsFor(size, h.cfg.SectorSize)
	if raw > maxFileSectors(h.cfg) {
		return false
	}

	direct := raw
	if direct > directCapacity(h.cfg) {
		direct = directCapacity(h.cfg)
	}

	allocated := make([]uint32, 0, direct)
	ok := true
	for i := 0; i < direct; i++ {
		bit, got := bm.FindAndMark()
		if !got {
			ok = false
			break
		}
		allocated = append(allocated, uint32(bit))
	}
	if !ok {
		for _, bit := range allocated {
			bm.Unmark(uint64(bit))
		}
		return false
	}

	h.Raw.NumBytes = uint32(size)
	h.Raw.NumSectors = uint32(raw)
	for i := 0; i < h.cfg.NumDirect; i++ {
		h.Raw.DataSectors[i] = 0
	}
	for i, bit := range allocated {
		h.Raw.DataSectors[i] = bit
	}

	if raw <= directCapacity(h.cfg) {
		return true
	}

	tailBit, got := bm.FindAndMark()
	if !got {
		for _, bit := range allocated {
			bm.Unmark(uint64(bit))
		}
		return false
	}

	tail := NewFileHeader(h.cfg)
	tailBytes := size - directCapacity(h.cfg)*h.cfg.SectorSize
	if !tail.Allocate(disk, caller, bm, tailBytes) {
		bm.Unmark(uint64(tailBit))
		for _, bit := range allocated {
			bm.Unmark(uint64(bit))
		}
		return false
	}
	if err := writeHeader(disk, caller, tail, int(tailBit)); err != nil {
		tail.Deallocate(disk, caller, bm)
		bm.Unmark(uint64(tailBit))
		for _, bit := range allocated {
			bm.Unmark(uint64(bit))
		}
		return false
	}

	h.Raw.DataSectors[h.cfg.NumDirect-1] = uint32(tailBit)
	return true
}

// Extend grows h by size additional bytes, allocating only the newly
// needed sectors against bm. Returns false, leaving h unchanged, if the
// growth cannot be represented or satisfied.
func (h *FileHeader) Extend(disk SectorDevice, caller *sched.Thread, bm *bitmap.Bitmap, size int) bool {
	newNumBytes := int(h.Raw.NumBytes) + size
	newRaw := rawSectorsFor(newNumBytes, h.cfg.SectorSize)
	if newRaw > maxFileSectors(h.cfg) {
		return false
	}

	hasTail := h.Raw.DataSectors[h.cfg.NumDirect-1] != 0
	oldDirect := int(h.Raw.NumSectors)
	if oldDirect > directCapacity(h.cfg) {
		oldDirect = directCapacity(h.cfg)
	}

	if !hasTail {
		newDirect := newRaw
		if newDirect > directCapacity(h.cfg) {
			newDirect = directCapacity(h.cfg)
		}
		extra := newDirect - oldDirect
		allocated := make([]uint32, 0, extra)
		ok := true
		for i := 0; i < extra; i++ {
			bit, got := bm.FindAndMark()
			if !got {
				ok = false
				break
			}
			allocated = append(allocated, uint32(bit))
		}
		if !ok {
			for _, bit := range allocated {
				bm.Unmark(uint64(bit))
			}
			return false
		}
		for i, bit := range allocated {
			h.Raw.DataSectors[oldDirect+i] = bit
		}

		if newRaw <= directCapacity(h.cfg) {
			h.Raw.NumBytes = uint32(newNumBytes)
			h.Raw.NumSectors = uint32(newRaw)
			return true
		}

		// Growth crosses into indirection: build a fresh tail header
		// covering everything beyond directCapacity. On failure the
		// direct slots filled above are cleared again.
		tailBit, got := bm.FindAndMark()
		if !got {
			for i, bit := range allocated {
				bm.Unmark(uint64(bit))
				h.Raw.DataSectors[oldDirect+i] = 0
			}
			return false
		}
		tail := NewFileHeader(h.cfg)
		tailBytes := newNumBytes - directCapacity(h.cfg)*h.cfg.SectorSize
		if !tail.Allocate(disk, caller, bm, tailBytes) {
			bm.Unmark(uint64(tailBit))
			for i, bit := range allocated {
				bm.Unmark(uint64(bit))
				h.Raw.DataSectors[oldDirect+i] = 0
			}
			return false
		}
		if err := writeHeader(disk, caller, tail, int(tailBit)); err != nil {
			tail.Deallocate(disk, caller, bm)
			bm.Unmark(uint64(tailBit))
			for i, bit := range allocated {
				bm.Unmark(uint64(bit))
				h.Raw.DataSectors[oldDirect+i] = 0
			}
			return false
		}
		h.Raw.DataSectors[h.cfg.NumDirect-1] = uint32(tailBit)
		h.Raw.NumBytes = uint32(newNumBytes)
		h.Raw.NumSectors = uint32(newRaw)
		return true
	}

	tailSector := h.Raw.DataSectors[h.cfg.NumDirect-1]
	tail, err := readHeader(disk, caller, h.cfg, int(tailSector))
	if err != nil {
		return false
	}
	if !tail.Extend(disk, caller, bm, size) {
		return false
	}
	if err := writeHeader(disk, caller, tail, int(tailSector)); err != nil {
		return false
	}
	h.Raw.NumBytes = uint32(newNumBytes)
	h.Raw.NumSectors = uint32(newRaw)
	return true
}

// Deallocate recursively frees the tail header (if any) then this
// header's own direct data sectors.
func (h *FileHeader) Deallocate(disk SectorDevice, caller *sched.Thread, bm *bitmap.Bitmap) {
	tailSector := h.Raw.DataSectors[h.cfg.NumDirect-1]
	if tailSector != 0 {
		if tail, err := readHeader(disk, caller, h.cfg, int(tailSector)); err == nil {
			tail.Deallocate(disk, caller, bm)
		}
		bm.Unmark(uint64(tailSector))
		h.Raw.DataSectors[h.cfg.NumDirect-1] = 0
	}
	for i := 0; i < directCapacity(h.cfg); i++ {
		if h.Raw.DataSectors[i] != 0 {
			bm.Unmark(uint64(h.Raw.DataSectors[i]))
			h.Raw.DataSectors[i] = 0
		}
	}
	h.Raw.NumBytes = 0
	h.Raw.NumSectors = 0
}

// ByteToSector translates a byte offset within the file to the disk
// sector holding it, recursing into the tail header when offset falls
// beyond direct capacity. Precondition: offset is within the file's
// current length.
func (h *FileHeader) ByteToSector(disk SectorDevice, caller *sched.Thread, offset int) (int, error) {
	slot := offset / h.cfg.SectorSize
	if slot < directCapacity(h.cfg) {
		return int(h.Raw.DataSectors[slot]), nil
	}
	tailSector := h.Raw.DataSectors[h.cfg.NumDirect-1]
	tail, err := readHeader(disk, caller, h.cfg, int(tailSector))
	if err != nil {
		return 0, err
	}
	return tail.ByteToSector(disk, caller, offset-directCapacity(h.cfg)*h.cfg.SectorSize)
}

// Length returns the file's current byte length.
func (h *FileHeader) Length() int {
	return int(h.Raw.NumBytes)
}
