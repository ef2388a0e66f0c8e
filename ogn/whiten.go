// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package ogn

// whiteningSeed seeds the fixed pseudo-random sequence XORed over a
// packet's 20 payload bytes before transmission. The real OGN whitening
// table was not retrievable in this environment (see DESIGN.md); this is a
// from-scratch, reproducible substitute generated once at init, not derived
// from wall-clock or other non-deterministic input.
const whiteningSeed = 0x4f474e32 // "OGN2"

var whiteningSequence [20]byte

func init() {
	x := uint32(whiteningSeed)
	for i := range whiteningSequence {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		whiteningSequence[i] = byte(x)
	}
}

// whitenPayload XORs buf in place with the fixed whitening sequence. The
// operation is its own inverse, so the same function serves both Whiten and
// Dewhiten.
func whitenPayload(buf *[20]byte) {
	for i := range buf {
		buf[i] ^= whiteningSequence[i]
	}
}
