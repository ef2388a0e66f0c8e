// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package ldpc

// The 208-bit frame (160 data bits + 48 parity bits) is split into 8
// independent interleaves of 26 bits each. Within an interleave, 5 bits form
// a classic Hamming single-error-correcting code addressing the interleave's
// 25 "addressed" positions (its own 5 parity bits plus its 20 data bits), and
// a 6th bit is an overall XOR parity over all 25, extending it to
// single-error-correct / double-error-detect (SEC-DED) per interleave.
//
// Spreading the 48 available parity bits over 8 independent interleaves
// rather than one flat code means up to 8 simultaneous bit errors are
// corrected for certain, as long as no two land in the same interleave: each
// interleave only ever has to solve a single-bit-error problem, which a
// Hamming code solves exactly, not statistically. See DESIGN.md for why this
// construction was chosen over copying upstream OGN's matrix (which wasn't in
// the retrieval pack this module was built from).
const (
	numInterleaves    = 8
	interleaveSize    = 26 // local ids 1..26
	hammingBits       = 5  // local ids 1,2,4,8,16
	dataPerInterleave = 20
	parityPerInterleave = hammingBits + 1 // + the overall-parity bit at local id 26

	dataBits   = numInterleaves * dataPerInterleave   // 160
	parityBits = numInterleaves * parityPerInterleave // 48
	totalBits  = numInterleaves * interleaveSize      // 208

	overallParityLocalID = interleaveSize // 26
)

// dataIdsOrdered lists, in ascending order, the 20 local ids (out of 1..25)
// that are not a Hamming parity position (1,2,4,8,16). Every interleave uses
// this same layout.
var dataIdsOrdered [dataPerInterleave]int

// idsWithBitSet[c] lists every local id in [1,25] whose binary representation
// has bit c set; it is the coverage set for Hamming parity bit 2^c.
var idsWithBitSet [hammingBits][]int

func init() {
	slot := 0
	for id := 1; id < overallParityLocalID; id++ {
		if id&(id-1) == 0 { // power of two: 1, 2, 4, 8, 16
			continue
		}
		dataIdsOrdered[slot] = id
		slot++
	}
	if slot != dataPerInterleave {
		panic("ldpc: data id layout miscounted")
	}
	for c := 0; c < hammingBits; c++ {
		for id := 1; id < overallParityLocalID; id++ {
			if id>>uint(c)&1 == 1 {
				idsWithBitSet[c] = append(idsWithBitSet[c], id)
			}
		}
	}
}

// globalIndex maps an (interleave, local id) pair to its position in the
// conceptual 208-bit frame used internally for the Hamming math. Local ids
// run 1..26; interleave runs 0..7.
func globalIndex(interleave, localID int) int {
	return interleave + numInterleaves*(localID-1)
}

// dataGlobalIndex maps payload data bit d (0..159, same order as the 20
// payload bytes, MSB-first) to its position in the internal 208-bit frame.
func dataGlobalIndex(d int) int {
	interleave := d / dataPerInterleave
	slot := d % dataPerInterleave
	return globalIndex(interleave, dataIdsOrdered[slot])
}

// parityGlobalIndex maps parity bit p (0..47, same order as the 6 parity
// bytes, MSB-first) to its position in the internal 208-bit frame.
func parityGlobalIndex(p int) int {
	interleave := p / parityPerInterleave
	slot := p % parityPerInterleave
	localID := overallParityLocalID
	if slot < hammingBits {
		localID = 1 << uint(slot)
	}
	return globalIndex(interleave, localID)
}
