// Package bitmap implements the free-block/free-inode allocation bitmap:
// a fixed-size bit vector with a find-first-clear-and-set allocation
// primitive and a last-allocated-bit hint so that sequential allocation
// requests tend to scan forward rather than restart from bit zero every
// time.
package bitmap

import (
	"fmt"
	"sync"

	"github.com/Workiva/go-datastructures/bitarray"
)

// Bitmap is a thread-safe, size-bounded bit vector used to track free disk
// sectors and free inode numbers.
type Bitmap struct {
	mu      sync.Mutex
	bits    bitarray.BitArray
	size    uint64
	lastbit uint64
}

// New allocates a Bitmap with size bits, all initially clear (free).
func New(size uint64) *Bitmap {
	return &Bitmap{
		bits: bitarray.NewBitArray(size),
		size: size,
	}
}

// Size reports the total number of bits the Bitmap tracks.
func (b *Bitmap) Size() uint64 {
	return b.size
}

// Test reports whether bit is set.
func (b *Bitmap) Test(bit uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, _ := b.bits.GetBit(bit)
	return set
}

// Mark sets bit unconditionally. Used to reserve bits at fixed positions,
// e.g. the file system's two system-file header sectors.
func (b *Bitmap) Mark(bit uint64) {
	if bit >= b.size {
		panic(fmt.Sprintf("bitmap: Mark bit %d out of range [0,%d)", bit, b.size))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits.SetBit(bit)
}

// Unmark clears bit, returning it to the free pool.
func (b *Bitmap) Unmark(bit uint64) {
	if bit >= b.size {
		panic(fmt.Sprintf("bitmap: Unmark bit %d out of range [0,%d)", bit, b.size))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits.ClearBit(bit)
}

// FindAndMark scans for the first clear bit starting from the
// last-allocated hint, sets it, and returns its index. ok is false when
// every bit is set (the resource is exhausted); callers translate that into
// defs.ENOSPC or defs.ENOMEM depending on what the bitmap tracks.
func (b *Bitmap) FindAndMark() (bit uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, _ := b.bits.GetBit(b.lastbit); !set {
		b.bits.SetBit(b.lastbit)
		found := b.lastbit
		b.lastbit = (b.lastbit + 1) % b.size
		return found, true
	}

	for i := uint64(0); i < b.size; i++ {
		candidate := (b.lastbit + i) % b.size
		set, _ := b.bits.GetBit(candidate)
		if !set {
			b.bits.SetBit(candidate)
			b.lastbit = (candidate + 1) % b.size
			return candidate, true
		}
	}
	return 0, false
}

// CountClear returns the number of free bits remaining.
func (b *Bitmap) CountClear() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var free uint64
	for i := uint64(0); i < b.size; i++ {
		if set, _ := b.bits.GetBit(i); !set {
			free++
		}
	}
	return free
}

// Serialize packs the bitmap into a little-endian byte slice sized to a
// whole number of sectorSize-byte sectors, for writing to the reserved
// bitmap sectors at the front of the disk.
func (b *Bitmap) Serialize(sectorSize int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	nbytes := (int(b.size) + 7) / 8
	nsectors := (nbytes + sectorSize - 1) / sectorSize
	if nsectors == 0 {
		nsectors = 1
	}
	buf := make([]byte, nsectors*sectorSize)
	for i := uint64(0); i < b.size; i++ {
		set, _ := b.bits.GetBit(i)
		if set {
			buf[i/8] |= 1 << (i % 8)
		}
	}
	return buf
}

// Deserialize rebuilds a Bitmap of size bits from bytes produced by
// Serialize (or the on-disk bitmap sectors read at mount time).
func Deserialize(data []byte, size uint64) *Bitmap {
	b := New(size)
	for i := uint64(0); i < size; i++ {
		byteIdx := i / 8
		if byteIdx >= uint64(len(data)) {
			break
		}
		if data[byteIdx]&(1<<(i%8)) != 0 {
			b.bits.SetBit(i)
		}
	}
	return b
}
