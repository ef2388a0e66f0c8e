// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package transceiver exposes a thin, chip-independent capability bundle
// over an OGN-capable radio, backed by exactly two concrete chip families:
// an RFM69-style FSK chip (rfm69.go) and an RFM95-style LoRa chip
// (rfm95.go). Unlike the interrupt-driven drivers it's adapted from, every
// Chip method here is synchronous and polled, because the RF task above it
// already owns the single cooperative loop and is the sole caller.
package transceiver

import "time"

// Mode is a chip operating mode, common across both chip families.
type Mode byte

const (
	ModeSleep Mode = iota
	ModeStandby
	ModeFS
	ModeTransmit
	ModeReceive
)

// settleTime is how long a mode transition takes to settle, per SPEC_FULL.md
// §4.5 ("Mode transitions STANDBY<->RX<->TX require a 1 ms settle").
const settleTime = time.Millisecond

// Chip is the capability bundle the RF task drives. Its methods are not
// concurrency-safe: exactly one goroutine (the RF task) may call them,
// exactly as the teacher's sx1231.Radio documents about its own methods.
type Chip interface {
	// Reset pulses (or, if soft, writes) the chip's reset line/register.
	Reset(hard bool) error
	WriteMode(m Mode) error
	ReadMode() (Mode, error)

	// SetChannel selects a hop channel in [0,128) within the configured plan.
	SetChannel(ch byte) error
	SetBaseFrequency(hz uint32) error
	SetChannelSpacing(hz uint32) error
	SetFrequencyCorrection(ppb int32) error

	WriteTxPower(dBm int8, hwVariant bool) error
	WriteTxPowerMin() error
	WriteSync(length, tolerance byte, sync [8]byte) error

	ClearIrqFlags() error
	ReadIrqFlags() (uint16, error)
	DIO0IsOn() (bool, error)

	WritePacket(frame [26]byte) error
	ReadPacket() (frame [26]byte, errMask [26]byte, err error)

	// WaitPacketSent polls the chip-specific "packet sent" IRQ bit until it
	// fires or timeout elapses, so callers never need to know each chip
	// family's IRQ bit layout.
	WaitPacketSent(timeout time.Duration) bool

	ReadRSSI() (int8, error)
	TriggerRSSI() error
	TriggerTemp() error
	ReadTemp() (int8, error)
	ReadVersion() (byte, error)

	// Error returns the first persistent transport error encountered, if
	// any; once set, every later call returns it until Reset clears it.
	Error() error
}

// LogPrintf is the logging closure every stateful component in this package
// accepts, matching the teacher's sx1231/sx1276 convention.
type LogPrintf func(format string, v ...interface{})

func noopLog(string, ...interface{}) {}
