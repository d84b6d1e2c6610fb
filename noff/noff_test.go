package noff

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Code:       Segment{Size: 4096, VirtualAddr: 0, InFileAddr: HeaderSize},
		InitData:   Segment{Size: 128, VirtualAddr: 4096, InFileAddr: HeaderSize + 4096},
		UninitData: Segment{Size: 256, VirtualAddr: 4224, InFileAddr: 0},
	}
	buf := Encode(h)
	if len(buf) != HeaderSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), HeaderSize)
	}
	got, ok := Decode(buf)
	if !ok {
		t.Fatal("Decode reported !ok on a freshly encoded header")
	}
	if got != h {
		t.Fatalf("Decode(Encode(h)) = %+v, want %+v", got, h)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	buf := make([]byte, HeaderSize)
	if _, ok := Decode(buf); ok {
		t.Fatal("Decode accepted an all-zero buffer")
	}
}

func TestDecodeHandlesOppositeEndianness(t *testing.T) {
	h := Header{Code: Segment{Size: 10, VirtualAddr: 20, InFileAddr: 30}}
	buf := Encode(h)

	// Simulate a header produced on a big-endian host: byte-swap every
	// 4-byte word, as original_source's SwapHeader does in the other
	// direction.
	for i := 0; i+4 <= len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = buf[i+3], buf[i+2], buf[i+1], buf[i]
	}

	got, ok := Decode(buf)
	if !ok {
		t.Fatal("Decode failed to recognize a byte-swapped header")
	}
	if got.Code != h.Code {
		t.Fatalf("Decode(byte-swapped) = %+v, want %+v", got.Code, h.Code)
	}
}
