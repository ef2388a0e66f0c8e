// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rftask

import (
	"time"

	"github.com/kedder/diy-tracker/transceiver"
)

// slotSettle is the fixed overhead TimeSlot reserves at the end of a slot
// for mode transitions and bookkeeping (SPEC_FULL.md §4.6: "maxTxTime =
// slotLength - 10 - maxWait").
const slotSettle = 10 * time.Millisecond

// packetSentTimeout bounds how long TimeSlot waits for the chip to report a
// completed transmission before giving up and returning to RX anyway.
const packetSentTimeout = 200 * time.Millisecond

// timeSlotResult reports what TimeSlot actually did, for the caller's
// telemetry and TX_Credit bookkeeping.
type timeSlotResult struct {
	attempted bool // an LBT+transmit attempt was made
	sent      bool // the chip reported PacketSent before the timeout
	busy      bool // LBT found the channel occupied; no credit was spent
}

// timeSlot implements SPEC_FULL.md §4.6's TimeSlot algorithm: listen on
// txChannel until a randomized offset within the slot, then (if a payload
// was given and credit remains) perform listen-before-talk and transmit,
// then keep listening until the slot's end.
//
// chip is assumed to already be in receive mode and tuned to txChannel when
// timeSlot is called; it is left in receive mode on return.
func timeSlot(chip transceiver.Chip, rnd *Random, clk Clock, txChannel byte,
	slotLength time.Duration, payload *[26]byte, noiseThreshold int8,
	maxWait time.Duration, desiredTxTime time.Duration, cred *credit) timeSlotResult {

	start := clk.Now()
	maxTxTime := slotLength - slotSettle - maxWait
	if desiredTxTime <= 0 || desiredTxTime >= maxTxTime {
		desiredTxTime = time.Duration(rnd.Intn(uint32(maxTxTime/time.Millisecond))) * time.Millisecond
	}

	listenUntil(chip, rnd, clk, start.Add(desiredTxTime))

	var result timeSlotResult
	if payload != nil && cred.available() {
		result.attempted = true
		busy := false
		deadline := clk.Now().Add(maxWait)
		for clk.Now().Before(deadline) {
			rssi, err := chip.ReadRSSI()
			if err != nil {
				break
			}
			rnd.MixRSSI(rssi)
			if rssi > noiseThreshold {
				busy = true
				break
			}
			clk.Sleep(time.Millisecond)
		}
		if busy {
			result.busy = true
		} else {
			chip.WriteMode(transceiver.ModeStandby)
			chip.SetChannel(txChannel)
			chip.ClearIrqFlags()
			chip.WritePacket(*payload)
			chip.WriteMode(transceiver.ModeTransmit)
			result.sent = chip.WaitPacketSent(packetSentTimeout)
			chip.WriteMode(transceiver.ModeStandby)
			chip.WriteMode(transceiver.ModeReceive)
			cred.decrement()
		}
	}

	listenUntil(chip, rnd, clk, start.Add(slotLength))
	return result
}

// listenUntil polls RSSI (mixing every sample into rnd, per the randomness
// discipline) until deadline, yielding 1ms at a time.
func listenUntil(chip transceiver.Chip, rnd *Random, clk Clock, deadline time.Time) {
	for clk.Now().Before(deadline) {
		rssi, err := chip.ReadRSSI()
		if err == nil {
			rnd.MixRSSI(rssi)
		}
		remain := deadline.Sub(clk.Now())
		step := time.Millisecond
		if remain < step {
			step = remain
		}
		if step <= 0 {
			return
		}
		clk.Sleep(step)
	}
}
