// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package ldpc implements an OGN-style (208,160) forward error corrector: 160
// payload bits (20 bytes) protected by 48 parity bits (6 bytes), decoded by
// iterative bit-flipping over Manchester-demodulated soft input. See
// DESIGN.md for the provenance of the parity-check construction.
package ldpc

// MaxIterations bounds how many parity sweeps the RF task will run before
// giving up on a frame. In practice a sweep corrects every interleave that
// has exactly one bad bit in a single pass, so convergence happens well
// before this limit is reached; it exists as a backstop against frames that
// can never converge (more than one error in the same interleave).
const MaxIterations = 24

// unpack splits a 26-byte frame into its 208 individual bits, MSB-first
// within each byte.
func unpack(frame [26]byte) [totalBits]byte {
	var bits [totalBits]byte
	for i := 0; i < totalBits; i++ {
		byteIdx, bitIdx := i/8, uint(7-i%8)
		bits[i] = (frame[byteIdx] >> bitIdx) & 1
	}
	return bits
}

func packParity(parity [parityBits]byte) [6]byte {
	var out [6]byte
	for i := 0; i < parityBits; i++ {
		if parity[i] != 0 {
			byteIdx, bitIdx := i/8, uint(7-i%8)
			out[byteIdx] |= 1 << bitIdx
		}
	}
	return out
}

// toInternal expands a frame's 160 data bits and 48 parity bits into the
// 208-slot interleaved representation matrix.go's global indices refer to.
func toInternal(dataBitsIn [dataBits]byte, parityBitsIn [parityBits]byte) [totalBits]byte {
	var bits [totalBits]byte
	for d := 0; d < dataBits; d++ {
		bits[dataGlobalIndex(d)] = dataBitsIn[d]
	}
	for p := 0; p < parityBits; p++ {
		bits[parityGlobalIndex(p)] = parityBitsIn[p]
	}
	return bits
}

// Compute computes the 6 parity bytes for a 20-byte payload.
func Compute(payload [20]byte) [6]byte {
	var frame [26]byte
	copy(frame[:20], payload[:])
	flat := unpack(frame)
	var data [dataBits]byte
	copy(data[:], flat[:dataBits])

	var bits [totalBits]byte
	for d := 0; d < dataBits; d++ {
		bits[dataGlobalIndex(d)] = data[d]
	}

	var parity [parityBits]byte
	for interleave := 0; interleave < numInterleaves; interleave++ {
		for c := 0; c < hammingBits; c++ {
			v := byte(0)
			for _, id := range idsWithBitSet[c] {
				v ^= bits[globalIndex(interleave, id)]
			}
			localID := 1 << uint(c)
			idx := globalIndex(interleave, localID)
			bits[idx] = v
			parity[interleave*parityPerInterleave+c] = v
		}
		overall := byte(0)
		for id := 1; id <= overallParityLocalID-1; id++ {
			overall ^= bits[globalIndex(interleave, id)]
		}
		bits[globalIndex(interleave, overallParityLocalID)] = overall
		parity[interleave*parityPerInterleave+hammingBits] = overall
	}
	return packParity(parity)
}

// Check returns the number of interleaves that are not internally consistent
// for a complete 26-byte frame (20 payload bytes followed by 6 parity bytes).
// Zero means the frame needs no correction.
func Check(frame [26]byte) int {
	flat := unpack(frame)
	var data [dataBits]byte
	var parity [parityBits]byte
	copy(data[:], flat[:dataBits])
	copy(parity[:], flat[dataBits:])
	bits := toInternal(data, parity)

	violations := 0
	for interleave := 0; interleave < numInterleaves; interleave++ {
		syndrome, overallBad := interleaveSyndrome(bits, interleave)
		if syndrome != 0 || overallBad {
			violations++
		}
	}
	return violations
}

// interleaveSyndrome computes the 5-bit Hamming syndrome and the overall
// parity mismatch flag for one interleave of the internal 208-bit frame.
func interleaveSyndrome(bits [totalBits]byte, interleave int) (syndrome int, overallBad bool) {
	for c := 0; c < hammingBits; c++ {
		v := byte(0)
		for _, id := range idsWithBitSet[c] {
			v ^= bits[globalIndex(interleave, id)]
		}
		if v != 0 {
			syndrome |= 1 << uint(c)
		}
	}
	overall := byte(0)
	for id := 1; id <= overallParityLocalID; id++ {
		overall ^= bits[globalIndex(interleave, id)]
	}
	return syndrome, overall != 0
}

// Decoder performs iterative bit-flip decoding over a 26-byte OGN-style
// frame. It is stateful (holds the current hard-decision bits across
// iterations) but not reentrant: callers must finish one frame (Input
// through Output) before starting the next.
type Decoder struct {
	bits   [totalBits]byte
	unsure [totalBits]bool
}

// Input loads hard bit decisions from frame and per-bit "manchester-uncertain"
// flags from errMask (one set bit per uncertain bit of the frame, same bit
// order as frame).
func (d *Decoder) Input(frame, errMask [26]byte) {
	flat := unpack(frame)
	var data [dataBits]byte
	var parity [parityBits]byte
	copy(data[:], flat[:dataBits])
	copy(parity[:], flat[dataBits:])
	d.bits = toInternal(data, parity)

	unsureFlat := unpack(errMask)
	var unsureData [dataBits]byte
	var unsureParity [parityBits]byte
	copy(unsureData[:], unsureFlat[:dataBits])
	copy(unsureParity[:], unsureFlat[dataBits:])
	unsureBits := toInternal(unsureData, unsureParity)
	for i := range unsureBits {
		d.unsure[i] = unsureBits[i] != 0
	}
}

// ProcessChecks performs one sweep over all 8 interleaves: each interleave
// whose 5-bit Hamming syndrome and overall parity both flag the same single
// bad bit gets it corrected immediately, since a Hamming code locates a
// single error exactly rather than by heuristic. An interleave where the
// syndrome is non-zero but the overall parity checks out holds at least two
// bad bits, which plain syndrome decoding can't locate (the syndrome is the
// XOR of both bad positions, which is never equal to either one). For that
// case the best available signal is which bits Manchester demodulation
// already flagged as uncertain: the first such bit in the interleave is
// tried as a correction, turning a two-error interleave into a one-error
// interleave that the next sweep's syndrome will resolve cleanly if the
// guess was right. If it wasn't, the interleave holds three bad bits and
// later sweeps either never converge (the iteration budget runs out) or
// settle on a wrong codeword that reports zero violations. It returns the
// number of interleaves found inconsistent at the start of the sweep.
func (d *Decoder) ProcessChecks() int {
	violations := 0
	for interleave := 0; interleave < numInterleaves; interleave++ {
		syndrome, overallBad := interleaveSyndrome(d.bits, interleave)
		if syndrome == 0 && !overallBad {
			continue
		}
		violations++

		switch {
		case syndrome != 0 && overallBad:
			idx := globalIndex(interleave, syndrome)
			d.bits[idx] ^= 1
		case syndrome == 0 && overallBad:
			idx := globalIndex(interleave, overallParityLocalID)
			d.bits[idx] ^= 1
		case syndrome != 0 && !overallBad:
			for id := 1; id <= overallParityLocalID; id++ {
				idx := globalIndex(interleave, id)
				if d.unsure[idx] {
					d.bits[idx] ^= 1
					break
				}
			}
		}
	}
	return violations
}

// Output writes the corrected 20-byte payload (FEC bytes excluded) into dst.
func (d *Decoder) Output(dst *[20]byte) {
	for i := 0; i < dataBits; i++ {
		byteIdx, bitIdx := i/8, uint(7-i%8)
		if d.bits[dataGlobalIndex(i)] != 0 {
			dst[byteIdx] |= 1 << bitIdx
		} else {
			dst[byteIdx] &^= 1 << bitIdx
		}
	}
}

// Decode is a convenience wrapper running Input, up to MaxIterations sweeps
// of ProcessChecks (stopping early once a sweep finds nothing wrong), and
// Output. It reports whether the frame converged to zero violated
// interleaves.
func Decode(frame, errMask [26]byte) (payload [20]byte, ok bool) {
	var d Decoder
	d.Input(frame, errMask)
	for i := 0; i < MaxIterations; i++ {
		if d.ProcessChecks() == 0 {
			ok = true
			break
		}
	}
	d.Output(&payload)
	return payload, ok
}
