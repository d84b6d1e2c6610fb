// Package device models the raw, asynchronous disk and console devices:
// a block-read/block-write and byte-in/byte-out interface with a
// completion interrupt, reduced to what the rest of the kernel actually
// touches rather than any real controller's register-level protocol.
// This package defines that narrow interface plus an in-memory fake for
// tests, and the SynchDisk/SynchConsole wrappers that turn the async
// interrupt-driven interface into a blocking one threads can call
// directly.
package device

// Disk is the raw, asynchronous block device: issuing a read or write
// starts the operation and returns immediately; completion is signaled by
// closing (or sending on) the returned channel, standing in for a
// completion interrupt.
type Disk interface {
	// ReadSectorAsync starts a read of sector into buf, which must be at
	// least SectorSize() bytes. The returned channel receives exactly one
	// error (nil on success) when the read completes.
	ReadSectorAsync(sector int, buf []byte) <-chan error
	// WriteSectorAsync starts a write of buf (SectorSize() bytes) to
	// sector. The returned channel receives exactly one error when the
	// write completes.
	WriteSectorAsync(sector int, buf []byte) <-chan error
	// NumSectors reports the disk's fixed capacity.
	NumSectors() int
	// SectorSize reports the fixed transfer unit, matching
	// config.Config.SectorSize.
	SectorSize() int
}

// Console is the raw, asynchronous byte-oriented terminal device.
type Console interface {
	// GetCharAsync starts reading one byte from the input stream. The
	// channel receives exactly one result when a byte is available.
	GetCharAsync() <-chan byte
	// PutCharAsync starts writing one byte to the output stream. The
	// channel is closed when the byte has been transferred.
	PutCharAsync(c byte) <-chan struct{}
}
