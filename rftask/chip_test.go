// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rftask

import (
	"time"

	"github.com/kedder/diy-tracker/transceiver"
)

// fakeChip is a scriptable transceiver.Chip for rftask tests: every
// behavior defaults to an inert value, and tests override only the fields
// they care about.
type fakeChip struct {
	version byte
	temp    int8

	rssiSeq []int8 // ReadRSSI cycles through this, repeating the last value
	rssiPos int

	dio0Seq []bool // DIO0IsOn cycles through this, wrapping around; empty means always false
	dio0Pos int

	rxFrames []rxFixture // ReadPacket pops one per DIO0-on call that consumes it
	rxPos    int

	writtenFrames []([26]byte)
	modes         []transceiver.Mode
	channels      []byte
	waitSentOK    bool

	err error
}

type rxFixture struct {
	frame   [26]byte
	errMask [26]byte
}

func (c *fakeChip) Reset(hard bool) error { return c.err }

func (c *fakeChip) WriteMode(m transceiver.Mode) error {
	c.modes = append(c.modes, m)
	return c.err
}

func (c *fakeChip) ReadMode() (transceiver.Mode, error) {
	if len(c.modes) == 0 {
		return transceiver.ModeStandby, c.err
	}
	return c.modes[len(c.modes)-1], c.err
}

func (c *fakeChip) SetChannel(ch byte) error {
	c.channels = append(c.channels, ch)
	return c.err
}

func (c *fakeChip) SetBaseFrequency(hz uint32) error      { return c.err }
func (c *fakeChip) SetChannelSpacing(hz uint32) error     { return c.err }
func (c *fakeChip) SetFrequencyCorrection(ppb int32) error { return c.err }

func (c *fakeChip) WriteTxPower(dBm int8, hwVariant bool) error { return c.err }
func (c *fakeChip) WriteTxPowerMin() error                      { return c.err }
func (c *fakeChip) WriteSync(length, tolerance byte, sync [8]byte) error { return c.err }

func (c *fakeChip) ClearIrqFlags() error          { return c.err }
func (c *fakeChip) ReadIrqFlags() (uint16, error) { return 0, c.err }

func (c *fakeChip) DIO0IsOn() (bool, error) {
	if len(c.dio0Seq) == 0 {
		return false, c.err
	}
	v := c.dio0Seq[c.dio0Pos%len(c.dio0Seq)]
	c.dio0Pos++
	return v, c.err
}

func (c *fakeChip) WritePacket(frame [26]byte) error {
	c.writtenFrames = append(c.writtenFrames, frame)
	return c.err
}

func (c *fakeChip) ReadPacket() (frame [26]byte, errMask [26]byte, err error) {
	if c.rxPos >= len(c.rxFrames) {
		return frame, errMask, c.err
	}
	f := c.rxFrames[c.rxPos]
	c.rxPos++
	return f.frame, f.errMask, c.err
}

func (c *fakeChip) WaitPacketSent(timeout time.Duration) bool { return c.waitSentOK }

func (c *fakeChip) ReadRSSI() (int8, error) {
	if len(c.rssiSeq) == 0 {
		return -90, c.err
	}
	v := c.rssiSeq[c.rssiPos]
	if c.rssiPos < len(c.rssiSeq)-1 {
		c.rssiPos++
	}
	return v, c.err
}

func (c *fakeChip) TriggerRSSI() error { return c.err }
func (c *fakeChip) TriggerTemp() error { return c.err }
func (c *fakeChip) ReadTemp() (int8, error) {
	return c.temp, c.err
}
func (c *fakeChip) ReadVersion() (byte, error) { return c.version, c.err }
func (c *fakeChip) Error() error               { return c.err }

var _ transceiver.Chip = (*fakeChip)(nil)
