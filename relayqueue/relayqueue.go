// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package relayqueue holds the fixed-capacity set of recently received
// foreign packets the RF task considers for single-hop relay, ranked by
// signal strength, altitude, and how many times each has already been
// relayed.
package relayqueue

import (
	"fmt"
	"io"

	"github.com/kedder/diy-tracker/ogn"
)

// Capacity is the fixed number of relay-candidate slots (§3: RelayQueue).
const Capacity = 16

type slot struct {
	packet ogn.RxPacket
	used   bool
}

// Queue is a flat array with a small header, exactly as SPEC_FULL.md §9
// prescribes: no back-pointers to the transceiver or GPS feed, never a
// package-level var — callers own a Queue value.
type Queue struct {
	entries [Capacity]slot
	Sum     int32 // count of entries with Rank>0
}

// Find returns the index of the existing entry for (address, addrType), or
// -1 if there is none. Callers use this before admitting a packet so a
// repeat sighting of the same aircraft overwrites its own slot instead of
// creating a duplicate.
func (q *Queue) Find(address uint32, addrType uint8) int {
	for i := range q.entries {
		e := &q.entries[i]
		if e.used && e.packet.Address() == address && e.packet.AddrType() == addrType {
			return i
		}
	}
	return -1
}

// GetNew returns a slot index to admit a new packet into: an unused slot if
// one exists, otherwise the slot with the lowest Rank (the weakest current
// relay candidate gets evicted).
func (q *Queue) GetNew() int {
	for i := range q.entries {
		if !q.entries[i].used {
			return i
		}
	}
	lowest := 0
	for i := 1; i < Capacity; i++ {
		if q.entries[i].packet.Rank < q.entries[lowest].packet.Rank {
			lowest = i
		}
	}
	return lowest
}

// AddNew finalizes admission of pkt into slot idx, replacing whatever was
// there (if anything) and keeping Sum consistent.
func (q *Queue) AddNew(idx int, pkt ogn.RxPacket) {
	e := &q.entries[idx]
	if e.used && e.packet.Rank > 0 {
		q.Sum--
	}
	e.packet = pkt
	e.used = true
	if pkt.Rank > 0 {
		q.Sum++
	}
}

// GetRand picks an entry at random with probability proportional to its
// Rank, drawing from next (the RF task's RX_Random source). It returns -1
// if the queue holds no relay-eligible entry.
func (q *Queue) GetRand(next func() uint32) int {
	if q.Sum <= 0 {
		return -1
	}
	var total uint32
	for i := range q.entries {
		if e := &q.entries[i]; e.used && e.packet.Rank > 0 {
			total += uint32(e.packet.Rank)
		}
	}
	target := int32(next() % total)
	var cum int32
	for i := range q.entries {
		e := &q.entries[i]
		if !e.used || e.packet.Rank <= 0 {
			continue
		}
		cum += int32(e.packet.Rank)
		if target < cum {
			return i
		}
	}
	return -1
}

// GetRelayPacket draws a relay candidate via GetRand, returning a copy of
// its wire frame with the relay count incremented and the FEC/whitening
// recomputed for retransmission, and halves the source entry's rank so it
// isn't immediately redrawn. ok is false if the queue holds no
// relay-eligible entry.
//
// Entries are admitted already dewhitened (rftask.receiveOne dewhitens on
// receipt, before FEC decode, and stores the clear packet) so this only
// needs to bump RelayCount and re-Seal, not Dewhiten again.
func (q *Queue) GetRelayPacket(next func() uint32) (frame [26]byte, ok bool) {
	idx := q.GetRand(next)
	if idx < 0 {
		return frame, false
	}
	pkt := q.entries[idx].packet.Packet
	pkt.SetRelayCount(pkt.RelayCount() + 1)
	pkt.Seal()
	q.DecrRank(idx)
	return pkt.Frame(), true
}

// DecrRank halves the rank of the entry at idx after it has been relayed,
// so the same packet isn't immediately picked again.
func (q *Queue) DecrRank(idx int) {
	e := &q.entries[idx]
	wasPositive := e.packet.Rank > 0
	e.packet.Rank /= 2
	if wasPositive && e.packet.Rank <= 0 {
		q.Sum--
	}
}

// CleanTime drops every entry whose slot-time stamp equals sec, implementing
// the rolling 30-second retention window: the RF task calls this once a
// second with (GPS_Sec+30) mod 60.
func (q *Queue) CleanTime(sec uint8) {
	for i := range q.entries {
		e := &q.entries[i]
		if e.used && e.packet.SlotTime == sec {
			if e.packet.Rank > 0 {
				q.Sum--
			}
			e.packet.Rank = 0
			e.used = false
		}
	}
}

// Print dumps the queue's active entries to w for debugging.
func (q *Queue) Print(w io.Writer) {
	fmt.Fprintf(w, "relayqueue: sum=%d\n", q.Sum)
	for i := range q.entries {
		e := &q.entries[i]
		if !e.used {
			continue
		}
		fmt.Fprintf(w, "  [%2d] addr=%06X type=%d rank=%d slot=%d\n",
			i, e.packet.Address(), e.packet.AddrType(), e.packet.Rank, e.packet.SlotTime)
	}
}
