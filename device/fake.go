package device

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FakeDisk is an in-memory Disk: one sectorSize-byte slice per sector
// number. This layer has no block cache or refcounted
// pinning of its own; caching and reference tracking belong to the file
// system, not the device.
type FakeDisk struct {
	sectorSize int
	sectors    [][]byte
	log        *logrus.Entry
}

// NewFakeDisk builds a FakeDisk with numSectors sectors of sectorSize
// bytes each, all zeroed.
func NewFakeDisk(numSectors, sectorSize int, log *logrus.Logger) *FakeDisk {
	d := &FakeDisk{
		sectorSize: sectorSize,
		sectors:    make([][]byte, numSectors),
	}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, sectorSize)
	}
	if log != nil {
		d.log = log.WithField("component", "fakedisk")
	}
	return d
}

func (d *FakeDisk) NumSectors() int { return len(d.sectors) }
func (d *FakeDisk) SectorSize() int { return d.sectorSize }

func (d *FakeDisk) checkSector(sector int) error {
	if sector < 0 || sector >= len(d.sectors) {
		return fmt.Errorf("device: sector %d out of range [0,%d)", sector, len(d.sectors))
	}
	return nil
}

// ReadSectorAsync copies the sector's stored bytes into buf and signals
// completion on a buffered channel the caller can receive from
// immediately; there is no real interrupt latency to simulate here.
func (d *FakeDisk) ReadSectorAsync(sector int, buf []byte) <-chan error {
	ch := make(chan error, 1)
	if err := d.checkSector(sector); err != nil {
		ch <- err
		return ch
	}
	n := copy(buf, d.sectors[sector])
	for ; n < len(buf); n++ {
		buf[n] = 0
	}
	if d.log != nil {
		d.log.WithField("sector", sector).Debug("read")
	}
	ch <- nil
	return ch
}

// WriteSectorAsync stores buf's first SectorSize bytes into sector.
func (d *FakeDisk) WriteSectorAsync(sector int, buf []byte) <-chan error {
	ch := make(chan error, 1)
	if err := d.checkSector(sector); err != nil {
		ch <- err
		return ch
	}
	copy(d.sectors[sector], buf)
	if d.log != nil {
		d.log.WithField("sector", sector).Debug("write")
	}
	ch <- nil
	return ch
}

// FakeConsole is an in-memory Console backed by byte queues, for tests
// that drive console I/O without a real terminal.
type FakeConsole struct {
	in  chan byte
	out []byte
}

// NewFakeConsole builds a FakeConsole. Feed input with Feed; inspect
// output written so far with Written.
func NewFakeConsole() *FakeConsole {
	return &FakeConsole{in: make(chan byte, 256)}
}

// Feed enqueues bytes for future GetCharAsync calls to return.
func (c *FakeConsole) Feed(bytes ...byte) {
	for _, b := range bytes {
		c.in <- b
	}
}

// Written returns every byte PutCharAsync has received so far.
func (c *FakeConsole) Written() []byte {
	return c.out
}

func (c *FakeConsole) GetCharAsync() <-chan byte {
	ch := make(chan byte, 1)
	go func() {
		ch <- <-c.in
	}()
	return ch
}

func (c *FakeConsole) PutCharAsync(b byte) <-chan struct{} {
	ch := make(chan struct{})
	c.out = append(c.out, b)
	close(ch)
	return ch
}
