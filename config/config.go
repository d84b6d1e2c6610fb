// Package config holds the kernel-wide tunables as constants, collected
// into one struct constructed once at startup and threaded through the
// kernel instead of living as scattered globals. Values come from Go
// literals and functional options rather than a config file, since this
// kernel is an in-process library with no deployment step of its own.
package config

// Config bundles every size/count parameter the kernel fixes at startup.
type Config struct {
	// SectorSize is the fixed disk-sector size in bytes. A RawFileHeader
	// must fit in exactly one sector.
	SectorSize int
	// NumDirect is the number of direct data-sector slots in a
	// RawFileHeader; the last slot is reserved for an indirect header
	// reference once numSectors >= NumDirect.
	NumDirect int
	// PageSize is the MIPS simulated page size in bytes.
	PageSize int
	// NumPhysPages is the number of physical frames the CoreMap manages.
	NumPhysPages int
	// TLBSize is the number of entries in the simulated TLB.
	TLBSize int
	// NumFileDescriptors is the fixed size of each thread's
	// file-descriptor table; 0 and 1 are reserved for console I/O.
	NumFileDescriptors int
	// FileNameMaxLen bounds a directory entry's name field.
	FileNameMaxLen int
	// MaxReadSize / MaxWriteSize bound a single Read/Write syscall.
	MaxReadSize  int
	MaxWriteSize int
	// UserStackSize is the size in bytes reserved for a new address
	// space's user stack.
	UserStackSize int
	// NumQueues is the number of scheduler priority levels, [0, NumQueues).
	NumQueues int
	// BitmapSectors is how many sectors the free-sector bitmap file
	// occupies; it lives at a fixed inode sector (0).
	BitmapSectors int
	// MaxFrameClasses bounds GetFrameToSwap's rotation: the documented
	// worst case is 4*NumPhysPages steps before a victim is found.
	MaxFrameClasses int
}

// Option mutates a Config at construction time.
type Option func(*Config)

// Default returns the spec's baseline configuration.
func Default() *Config {
	c := &Config{
		SectorSize:         128,
		NumDirect:          14,
		PageSize:           128,
		NumPhysPages:       32,
		TLBSize:            4,
		NumFileDescriptors: 16,
		FileNameMaxLen:     32,
		MaxReadSize:        1 << 20,
		MaxWriteSize:       1 << 20,
		UserStackSize:      1024,
		NumQueues:          64,
		BitmapSectors:      1,
		MaxFrameClasses:    4,
	}
	return c
}

// New builds a Config from Default with opts applied in order.
func New(opts ...Option) *Config {
	c := Default()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPhysPages overrides NumPhysPages, e.g. to force eviction in a test
// with a small number of physical frames.
func WithPhysPages(n int) Option {
	return func(c *Config) { c.NumPhysPages = n }
}

// WithSectorSize overrides SectorSize and NumDirect together, since the
// RawFileHeader-fits-in-one-sector invariant ties the two.
func WithSectorSize(sectorSize, numDirect int) Option {
	return func(c *Config) {
		c.SectorSize = sectorSize
		c.NumDirect = numDirect
	}
}

// WithTLBSize overrides TLBSize.
func WithTLBSize(n int) Option {
	return func(c *Config) { c.TLBSize = n }
}
