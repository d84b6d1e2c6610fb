// Package noff decodes the executable header AddressSpace loads a user
// program from: a magic number followed by three segment descriptors
// (code, initialized data, uninitialized data), each a (size,
// virtualAddr, inFileAddr) triple. Grounded on
// original_source/code/userprog/address_space.cc's noffHeader layout and
// its SwapHeader byte-swap routine, re-expressed as explicit
// little-endian encode/decode rather than reinterpreting struct memory.
package noff

import "encoding/binary"

// Magic identifies a valid header. A file whose first four bytes decode
// to the byte-swapped value of Magic was produced on a machine of the
// other endianness; Decode corrects for this transparently.
const Magic = 0x456789ab

// HeaderSize is the encoded size in bytes: one uint32 magic plus three
// Segment triples of three uint32 fields each.
const HeaderSize = 4 + 3*3*4

// Segment describes one contiguous region of the executable: its size in
// bytes, the virtual address it loads to, and its byte offset within the
// executable file.
type Segment struct {
	Size        uint32
	VirtualAddr uint32
	InFileAddr  uint32
}

// Header is the decoded NOFF executable header.
type Header struct {
	Code       Segment
	InitData   Segment
	UninitData Segment
}

func encodeSegment(buf []byte, s Segment) {
	binary.LittleEndian.PutUint32(buf[0:4], s.Size)
	binary.LittleEndian.PutUint32(buf[4:8], s.VirtualAddr)
	binary.LittleEndian.PutUint32(buf[8:12], s.InFileAddr)
}

// Encode serializes h into a HeaderSize-byte little-endian buffer.
func Encode(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	encodeSegment(buf[4:16], h.Code)
	encodeSegment(buf[16:28], h.InitData)
	encodeSegment(buf[28:40], h.UninitData)
	return buf
}

// Decode parses a HeaderSize-byte buffer into a Header. If the leading
// word matches Magic byte-swapped rather than as-is, every field is
// re-read as big-endian instead — the host and the file disagree on
// endianness, mirrored from SwapHeader's "decode the other way" fallback.
// ok is false if neither endianness yields Magic.
func Decode(buf []byte) (h Header, ok bool) {
	order := binary.ByteOrder(binary.LittleEndian)
	magic := order.Uint32(buf[0:4])
	if magic != Magic {
		order = binary.BigEndian
		magic = order.Uint32(buf[0:4])
		if magic != Magic {
			return Header{}, false
		}
	}
	readSegment := func(b []byte) Segment {
		return Segment{
			Size:        order.Uint32(b[0:4]),
			VirtualAddr: order.Uint32(b[4:8]),
			InFileAddr:  order.Uint32(b[8:12]),
		}
	}
	h.Code = readSegment(buf[4:16])
	h.InitData = readSegment(buf[16:28])
	h.UninitData = readSegment(buf[28:40])
	return h, true
}
