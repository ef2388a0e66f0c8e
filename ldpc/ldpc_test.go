// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package ldpc

import "testing"

func frameFor(payload [20]byte) [26]byte {
	var frame [26]byte
	copy(frame[:20], payload[:])
	fec := Compute(payload)
	copy(frame[20:], fec[:])
	return frame
}

func Test_ComputeCheckRoundTrip(t *testing.T) {
	payloads := map[string][20]byte{
		"zero": {},
		"ones": {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		"mixed": {0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x10, 0x20,
			0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90, 0xa0, 0xb0, 0xc0},
	}
	for n, p := range payloads {
		frame := frameFor(p)
		if v := Check(frame); v != 0 {
			t.Fatalf("%s: Check on freshly computed frame = %d, want 0", n, v)
		}
	}
}

// Test_DecodeCorrectsFlippedBits flips one bit in each of three different
// interleaves (data bit 5 -> interleave 0, data bit 45 -> interleave 2,
// parity bit 24 -> interleave 4), so every interleave the decoder has to
// deal with has exactly one bad bit — the case a Hamming code resolves
// exactly, not by heuristic.
func Test_DecodeCorrectsFlippedBits(t *testing.T) {
	payload := [20]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x10, 0x20,
		0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90, 0xa0, 0xb0, 0xc0}
	frame := frameFor(payload)

	corrupt := frame
	corrupt[0] ^= 0x04  // data bit 5
	corrupt[5] ^= 0x04  // data bit 45
	corrupt[23] ^= 0x80 // parity bit 24

	var errMask [26]byte
	got, ok := Decode(corrupt, errMask)
	if !ok {
		t.Fatalf("Decode did not converge on a 3-bit-flip frame")
	}
	if got != payload {
		t.Fatalf("Decode produced %x, want %x", got, payload)
	}
}

// Test_DecodeUsesUncertaintyHints corrupts two data bits that fall in the
// same interleave (data bits 100 and 101, both interleave 5), a pattern a
// Hamming syndrome alone can't locate. Flagging the first of the two as
// manchester-uncertain lets ProcessChecks try it first; once that bit is
// corrected, only one bad bit remains in the interleave and the next sweep's
// syndrome resolves it exactly.
func Test_DecodeUsesUncertaintyHints(t *testing.T) {
	payload := [20]byte{0x55, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09,
		0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13}
	frame := frameFor(payload)

	corrupt := frame
	corrupt[12] ^= 0x08 // data bit 100
	corrupt[12] ^= 0x04 // data bit 101

	var errMask [26]byte
	errMask[12] = 0x08 // flag data bit 100 as manchester-uncertain

	got, ok := Decode(corrupt, errMask)
	if !ok || got != payload {
		t.Fatalf("Decode with uncertainty hint failed: ok=%v got=%x want=%x", ok, got, payload)
	}
}

func Test_DecodeWithoutHintCanFailSafely(t *testing.T) {
	payload := [20]byte{0x55, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09,
		0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13}
	frame := frameFor(payload)

	corrupt := frame
	corrupt[12] ^= 0x08 // data bit 100
	corrupt[12] ^= 0x04 // data bit 101

	var errMask [26]byte // no hints at all this time
	got, ok := Decode(corrupt, errMask)
	if ok && got != payload {
		t.Fatalf("Decode reported success with a wrong payload: %x, want %x", got, payload)
	}
}

func Test_CheckDetectsCorruption(t *testing.T) {
	payload := [20]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	frame := frameFor(payload)
	frame[5] ^= 0x01
	if v := Check(frame); v == 0 {
		t.Fatalf("Check did not detect a single flipped bit")
	}
}
