// Package fs implements an on-disk file system: file headers (inodes)
// with single-level indirection, a flat directory, and FileSystem/
// OpenFile objects coordinated by a per-file readers/writer policy with
// deferred deletion. No block cache and no write-ahead log; every
// operation reads and writes straight through to the sector device (see
// DESIGN.md for why).
package fs

import "github.com/go-simkernel/simkernel/sched"

// SectorDevice is the blocking, sector-addressed storage every fs/ type
// reads and writes through — satisfied by *device.SynchDisk. Declared
// here (rather than imported from device) so fs does not need to import
// device just to name the narrow slice of its API this package uses.
type SectorDevice interface {
	ReadSector(caller *sched.Thread, sector int, buf []byte) error
	WriteSector(caller *sched.Thread, sector int, buf []byte) error
	SectorSize() int
	NumSectors() int
}
