// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package ogn implements the OGN-style position/status packet: a 26-byte
// frame (20 bytes payload, 6 bytes LDPC parity) with whitening, address
// parity, and the position/velocity/aircraft fields the RF task composes
// and decodes every second.
package ogn

import (
	"fmt"
	"math/bits"

	"github.com/kedder/diy-tracker/ldpc"
	"github.com/kedder/diy-tracker/telemetry"
)

// TimeStale is the sentinel value of the 6-bit time-of-second field meaning
// "GPS lock has been lost and this is a stale re-send".
const TimeStale = 0x3F

// Packet is an OGN-style position/status packet. The zero value is a valid,
// all-fields-zero packet ready for Set* calls followed by Seal.
//
// Byte layout (20-byte payload, before the 6 FEC bytes appended by Seal):
//
//	0:    bits0-1 AddrType, bit2 Other, bit3 Encrypted, bit4 Stealth, bit5 Emergency
//	1-3:  Address, 24-bit, big-endian
//	4:    bits0-5 TimeOfSecond (0-62, or TimeStale)
//	5:    bits0-3 RelayCount, bits4-7 AcftType
//	6-8:  Latitude, 24-bit signed, 1/10000 minute units, big-endian
//	9-11: Longitude, 24-bit signed, 1/10000 minute units, big-endian
//	12-13: Altitude, 16-bit signed meters, big-endian
//	14:   Speed, unsigned, km/h
//	15:   Climb, signed, 0.1 m/s units
//	16:   TurnRate, signed, 0.1 deg/s units
//	17:   Accel, signed, reserved
//	18:   bit0 AddrParity, remaining bits reserved (always 0)
//	19:   reserved (always 0)
type Packet struct {
	frame [26]byte
}

// Frame returns the packet's current 26-byte wire representation (payload
// followed by FEC parity). Its payload bytes are whitened only after Seal.
func (p *Packet) Frame() [26]byte { return p.frame }

// SetFrame replaces the packet's wire representation wholesale, as done when
// a 26-byte frame is received off the air.
func (p *Packet) SetFrame(frame [26]byte) { p.frame = frame }

func (p *Packet) AddrType() uint8 { return p.frame[0] & 0x03 }
func (p *Packet) SetAddrType(v uint8) {
	p.frame[0] = p.frame[0]&^0x03 | v&0x03
}

func (p *Packet) IsOther() bool      { return p.frame[0]&0x04 != 0 }
func (p *Packet) SetOther(v bool)    { p.setFlag(0, 0x04, v) }
func (p *Packet) IsEncrypted() bool  { return p.frame[0]&0x08 != 0 }
func (p *Packet) SetEncrypted(v bool) { p.setFlag(0, 0x08, v) }
func (p *Packet) IsStealth() bool    { return p.frame[0]&0x10 != 0 }
func (p *Packet) SetStealth(v bool)  { p.setFlag(0, 0x10, v) }
func (p *Packet) IsEmergency() bool  { return p.frame[0]&0x20 != 0 }
func (p *Packet) SetEmergency(v bool) { p.setFlag(0, 0x20, v) }

func (p *Packet) setFlag(byteIdx int, mask byte, v bool) {
	if v {
		p.frame[byteIdx] |= mask
	} else {
		p.frame[byteIdx] &^= mask
	}
}

func (p *Packet) Address() uint32 {
	return uint32(p.frame[1])<<16 | uint32(p.frame[2])<<8 | uint32(p.frame[3])
}
func (p *Packet) SetAddress(addr uint32) {
	p.frame[1] = byte(addr >> 16)
	p.frame[2] = byte(addr >> 8)
	p.frame[3] = byte(addr)
}

func (p *Packet) TimeOfSecond() uint8 { return p.frame[4] & 0x3F }
func (p *Packet) SetTimeOfSecond(sec uint8) {
	p.frame[4] = p.frame[4]&^0x3F | sec&0x3F
}

func (p *Packet) RelayCount() uint8 { return p.frame[5] & 0x0F }
func (p *Packet) SetRelayCount(n uint8) {
	p.frame[5] = p.frame[5]&^0x0F | n&0x0F
}

func (p *Packet) AcftType() uint8 { return p.frame[5] >> 4 & 0x0F }
func (p *Packet) SetAcftType(t uint8) {
	p.frame[5] = p.frame[5]&0x0F | t<<4&0xF0
}

func (p *Packet) Latitude() int32  { return unpack24(p.frame[6], p.frame[7], p.frame[8]) }
func (p *Packet) SetLatitude(v int32) {
	p.frame[6], p.frame[7], p.frame[8] = pack24(v)
}

func (p *Packet) Longitude() int32 { return unpack24(p.frame[9], p.frame[10], p.frame[11]) }
func (p *Packet) SetLongitude(v int32) {
	p.frame[9], p.frame[10], p.frame[11] = pack24(v)
}

func (p *Packet) Altitude() int16 {
	return int16(uint16(p.frame[12])<<8 | uint16(p.frame[13]))
}
func (p *Packet) SetAltitude(meters int16) {
	p.frame[12] = byte(uint16(meters) >> 8)
	p.frame[13] = byte(uint16(meters))
}

func (p *Packet) Speed() uint8        { return p.frame[14] }
func (p *Packet) SetSpeed(kmh uint8)  { p.frame[14] = kmh }
func (p *Packet) Climb() int8         { return int8(p.frame[15]) }
func (p *Packet) SetClimb(v int8)     { p.frame[15] = byte(v) }
func (p *Packet) TurnRate() int8      { return int8(p.frame[16]) }
func (p *Packet) SetTurnRate(v int8)  { p.frame[16] = byte(v) }
func (p *Packet) Accel() int8         { return int8(p.frame[17]) }
func (p *Packet) SetAccel(v int8)     { p.frame[17] = byte(v) }

// ComputeAddrParity folds Address and AddrType down to a single parity bit.
func (p *Packet) ComputeAddrParity() byte {
	v := p.Address()<<2 | uint32(p.AddrType())
	return byte(bits.OnesCount32(v) & 1)
}

// SetAddrParity stores the packet's current address parity bit.
func (p *Packet) SetAddrParity() {
	p.setFlag(18, 0x01, p.ComputeAddrParity() != 0)
}

// VerifyAddrParity reports whether the stored address parity bit matches
// what the current Address/AddrType fields compute to.
func (p *Packet) VerifyAddrParity() bool {
	stored := p.frame[18] & 0x01
	return stored == p.ComputeAddrParity()
}

// Seal finalizes a composed packet for transmission: it stamps the address
// parity bit, computes the 6-byte FEC parity from the clear payload, and
// whitens the 20 payload bytes in place. Call it once, after all Set* calls.
func (p *Packet) Seal() {
	p.SetAddrParity()
	var payload [20]byte
	copy(payload[:], p.frame[:20])
	fec := ldpc.Compute(payload)
	copy(p.frame[20:], fec[:])
	whitenPayload(&payload)
	copy(p.frame[:20], payload[:])
}

// Dewhiten reverses Seal's payload whitening in place, for a frame just
// received off the air. It leaves the FEC bytes untouched, since those were
// never whitened.
func (p *Packet) Dewhiten() {
	var payload [20]byte
	copy(payload[:], p.frame[:20])
	whitenPayload(&payload)
	copy(p.frame[:20], payload[:])
}

// CheckFEC reports how many LDPC interleaves are inconsistent in the
// packet's current (dewhitened) frame. Zero means no correction is needed.
func (p *Packet) CheckFEC() int { return ldpc.Check(p.frame) }

// Decode runs the LDPC decoder over the packet's current frame, given a
// per-bit manchester-uncertainty mask (same bit order as Frame), corrects
// the payload in place, and reports whether the decoder converged together
// with the total bit-error count (manchester-uncertain payload bits plus
// payload bits the decoder had to flip; bits in the 6 FEC bytes are not
// counted) for the RxErr threshold in §4.3.
func (p *Packet) Decode(errMask [26]byte) (rxErr int, converged bool) {
	var orig [20]byte
	copy(orig[:], p.frame[:20])

	corrected, ok := ldpc.Decode(p.frame, errMask)
	flips := 0
	for i := range orig {
		flips += bits.OnesCount8(orig[i] ^ corrected[i])
	}
	manchester := 0
	for i := 0; i < 20; i++ {
		manchester += bits.OnesCount8(errMask[i])
	}
	copy(p.frame[:20], corrected[:])
	return manchester + flips, ok
}

// Compare reports whether two packets carry an identical wire frame.
func (p *Packet) Compare(other *Packet) bool { return p.frame == other.frame }

func pack24(v int32) (b0, b1, b2 byte) {
	u := uint32(v) & 0xFFFFFF
	return byte(u >> 16), byte(u >> 8), byte(u)
}

func unpack24(b0, b1, b2 byte) int32 {
	u := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	if u&0x800000 != 0 {
		u |= 0xFF000000 // sign-extend
	}
	return int32(u)
}

// DistanceVector returns the approximate north/east offset, in meters, of
// this packet's position from a reference position, using a precomputed
// Q16.16 fixed-point cosine of the reference latitude (as supplied by
// gpsfeed.Position.LatCosine) instead of calling math/trig per packet.
func (p *Packet) DistanceVector(refLat, refLon, refLatCosineQ16 int32) (north, east int32) {
	const metersPerUnit = 0.1852 // 1/10000 nautical-mile minute, in meters
	dLat := float64(p.Latitude()-refLat) * metersPerUnit
	cosLat := float64(refLatCosineQ16) / 65536.0
	dLon := float64(p.Longitude()-refLon) * metersPerUnit * cosLat
	return int32(dLat), int32(dLon)
}

// WritePOGNT formats the received-packet telemetry sentence for this
// packet.
func (p *Packet) WritePOGNT() string {
	body := fmt.Sprintf("POGNT,%06X,%d,%d,%d,%d,%d,%d,%d,%d,%d",
		p.Address(), p.AddrType(), p.AcftType(), p.TimeOfSecond(),
		p.Latitude(), p.Longitude(), p.Altitude(),
		p.Speed(), p.Climb(), p.RelayCount())
	return telemetry.Sentence(body)
}

// WritePFLAA formats the traffic-geometry sentence for a display, given the
// packet's distance vector from the receiver's own position (already
// computed via DistanceVector).
func (p *Packet) WritePFLAA(north, east int32, altDelta int16) string {
	body := fmt.Sprintf("PFLAA,0,%d,%d,%d,%d,%06X,,,,%d,%d",
		north, east, altDelta, 2, p.Address(), p.Speed(), p.AcftType())
	return telemetry.Sentence(body)
}
