// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package transceiver

import (
	"errors"
	"time"
)

// rfm69 register map, adapted from sx1231/registers.go (Semtech SX1231 /
// HopeRF RFM69). Only the registers the Chip interface needs are named.
const (
	rfm69RegFifo        = 0x00
	rfm69RegOpMode      = 0x01
	rfm69RegDataModul   = 0x02
	rfm69RegBitrateMsb  = 0x03
	rfm69RegFdevMsb     = 0x05
	rfm69RegFrfMsb      = 0x07
	rfm69RegPaLevel     = 0x11
	rfm69RegRxBw        = 0x19
	rfm69RegAfcBw       = 0x1A
	rfm69RegRssiConfig  = 0x23
	rfm69RegRssiValue   = 0x24
	rfm69RegDioMapping1 = 0x25
	rfm69RegIrqFlags1   = 0x27
	rfm69RegIrqFlags2   = 0x28
	rfm69RegSyncConfig  = 0x2E
	rfm69RegSyncValue1  = 0x2F
	rfm69RegFifoThresh  = 0x3C
	rfm69RegPktConfig2  = 0x3D
	rfm69RegTestPa1     = 0x5A
	rfm69RegTestPa2     = 0x5C
	rfm69RegTemp1       = 0x4E
	rfm69RegTemp2       = 0x4F
	rfm69RegVersion     = 0x10

	rfm69ModeSleep   = 0 << 2
	rfm69ModeStandby = 1 << 2
	rfm69ModeFS      = 2 << 2
	rfm69ModeTx      = 3 << 2
	rfm69ModeRx      = 4 << 2

	rfm69Irq1ModeReady = 1 << 7
	rfm69Irq2PacketSent = 1 << 3

	rfm69DioMapping = 0x31
	rfm69DioRssi    = 0xC0
	rfm69DioSync    = 0x80
	rfm69DioPktSent = 0x00
)

var rfm69ToChipMode = map[Mode]byte{
	ModeSleep:    rfm69ModeSleep,
	ModeStandby:  rfm69ModeStandby,
	ModeFS:       rfm69ModeFS,
	ModeTransmit: rfm69ModeTx,
	ModeReceive:  rfm69ModeRx,
}

var rfm69FromChipMode = map[byte]Mode{
	rfm69ModeSleep:   ModeSleep,
	rfm69ModeStandby: ModeStandby,
	rfm69ModeFS:      ModeFS,
	rfm69ModeTx:      ModeTransmit,
	rfm69ModeRx:      ModeReceive,
}

// rfm69Chip drives a HopeRF RFM69 (Semtech SX1231) over SPI, synchronously:
// every method blocks until the chip acknowledges, there is no internal
// interrupt-servicing goroutine (unlike the teacher's sx1231.Radio), because
// the RF task above is the single, polling owner of this chip.
type rfm69Chip struct {
	spi     SPI
	dio0    GPIO
	resetP  GPIO
	paBoost bool
	mode    byte
	power   int8
	err     error
	log     LogPrintf

	baseFreqHz uint32
	spacingHz  uint32
	channel    byte
}

// NewRFM69 returns a Chip backed by an RFM69-style FSK radio on spi, with
// dio0 polled for IRQ status and resetPin (if non-nil) used for hard reset.
func NewRFM69(spi SPI, dio0, resetPin GPIO, paBoost bool, log LogPrintf) Chip {
	if log == nil {
		log = noopLog
	}
	return &rfm69Chip{spi: spi, dio0: dio0, resetP: resetPin, paBoost: paBoost, log: log}
}

func (c *rfm69Chip) Error() error { return c.err }

func (c *rfm69Chip) fail(err error) error {
	if c.err == nil {
		c.err = err
	}
	return c.err
}

func (c *rfm69Chip) writeReg(addr byte, data ...byte) error {
	if c.err != nil {
		return c.err
	}
	wBuf := make([]byte, len(data)+1)
	rBuf := make([]byte, len(data)+1)
	wBuf[0] = addr | 0x80
	copy(wBuf[1:], data)
	if err := c.spi.Tx(wBuf, rBuf); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *rfm69Chip) readReg(addr byte) (byte, error) {
	if c.err != nil {
		return 0, c.err
	}
	var buf [2]byte
	if err := c.spi.Tx([]byte{addr & 0x7f, 0}, buf[:]); err != nil {
		return 0, c.fail(err)
	}
	return buf[1], nil
}

func (c *rfm69Chip) Reset(hard bool) error {
	c.err = nil
	if hard && c.resetP != nil {
		c.resetP.Out(GpioHigh)
		time.Sleep(100 * time.Microsecond)
		c.resetP.Out(GpioLow)
		time.Sleep(5 * time.Millisecond)
	}
	c.mode = rfm69ModeStandby
	for _, reg := range [][2]byte{
		{rfm69RegOpMode, 0x00},
		{rfm69RegPaLevel, 0x9F},
		{0x1E, 0x0C}, // AFC auto-clear, auto-on
		{rfm69RegDioMapping1, rfm69DioMapping},
		{0x29, 0xA8}, // RSSI threshold
		{0x2D, 0x05}, // preamble size
		{0x37, 0x18}, // packet config: fixed length, whitening off (we whiten ourselves), no addr filter
		{0x38, 26},   // fixed 26-byte payload length
		{rfm69RegFifoThresh, 0x8F},
		{rfm69RegPktConfig2, 0x12},
	} {
		if err := c.writeReg(reg[0], reg[1]); err != nil {
			return err
		}
	}
	return c.err
}

func (c *rfm69Chip) WriteMode(m Mode) error {
	raw, ok := rfm69ToChipMode[m]
	if !ok {
		return c.fail(errors.New("transceiver: rfm69: invalid mode"))
	}
	if c.mode == raw {
		return c.err
	}
	switch raw {
	case rfm69ModeTx:
		if c.power > 17 {
			c.writeReg(rfm69RegTestPa1, 0x5D)
			c.writeReg(rfm69RegTestPa2, 0x7C)
		}
		c.writeReg(rfm69RegDioMapping1, rfm69DioMapping+rfm69DioPktSent)
		c.writeReg(rfm69RegOpMode, raw)
	case rfm69ModeRx:
		if c.power > 17 {
			c.writeReg(rfm69RegTestPa1, 0x55)
			c.writeReg(rfm69RegTestPa2, 0x70)
		}
		c.writeReg(rfm69RegOpMode, raw)
		c.writeReg(rfm69RegDioMapping1, rfm69DioMapping+rfm69DioRssi)
	default:
		c.writeReg(rfm69RegOpMode, raw)
		c.writeReg(rfm69RegDioMapping1, rfm69DioMapping)
	}
	for start := time.Now(); time.Since(start) < 100*time.Millisecond; {
		v, err := c.readReg(rfm69RegIrqFlags1)
		if err != nil {
			return err
		}
		if v&rfm69Irq1ModeReady != 0 {
			c.mode = raw
			time.Sleep(settleTime)
			return nil
		}
	}
	return c.fail(errors.New("transceiver: rfm69: timeout switching modes"))
}

func (c *rfm69Chip) ReadMode() (Mode, error) {
	return rfm69FromChipMode[c.mode], c.err
}

// SetChannel selects channel ch within the base frequency plus spacing
// previously given to SetBaseFrequency/SetChannelSpacing, and reprograms the
// carrier immediately so the hop actually happens before the next half-slot.
func (c *rfm69Chip) SetChannel(ch byte) error {
	c.channel = ch
	return c.programFrequency()
}

func (c *rfm69Chip) SetBaseFrequency(hz uint32) error {
	c.baseFreqHz = hz
	return c.programFrequency()
}

func (c *rfm69Chip) SetChannelSpacing(hz uint32) error {
	c.spacingHz = hz
	return c.programFrequency()
}

// programFrequency writes the FRF registers for the current base frequency,
// channel spacing and channel, i.e. baseFreqHz + channel*spacingHz.
func (c *rfm69Chip) programFrequency() error {
	mode := c.mode
	if err := c.WriteMode(ModeStandby); err != nil {
		return err
	}
	hz := c.baseFreqHz + uint32(c.channel)*c.spacingHz
	frf := (uint64(hz) << 2) / (32000000 >> 11)
	err := c.writeReg(rfm69RegFrfMsb, byte(frf>>10), byte(frf>>2), byte(frf<<6))
	c.WriteMode(rfm69FromChipMode[mode])
	return err
}

func (c *rfm69Chip) SetFrequencyCorrection(ppb int32) error {
	// The correction is accepted but not applied: this driver exposes no
	// AFC-offset register, and rftask programs the plan's uncorrected base
	// frequency through SetBaseFrequency.
	return nil
}

func (c *rfm69Chip) WriteTxPower(dBm int8, hwVariant bool) error {
	c.paBoost = hwVariant
	mode := c.mode
	c.WriteMode(ModeStandby)
	if c.paBoost {
		if dBm > 20 {
			dBm = 20
		}
		switch {
		case dBm <= 13:
			c.writeReg(rfm69RegPaLevel, byte(0x40+18+dBm))
		case dBm <= 17:
			c.writeReg(rfm69RegPaLevel, byte(0x60+14+dBm))
		default:
			c.writeReg(rfm69RegPaLevel, byte(0x60+11+dBm))
		}
	} else {
		if dBm > 13 {
			dBm = 13
		}
		c.writeReg(rfm69RegPaLevel, byte(0x80+18+dBm))
	}
	c.writeReg(rfm69RegTestPa1, 0x55)
	c.writeReg(rfm69RegTestPa2, 0x70)
	c.power = dBm
	c.WriteMode(rfm69FromChipMode[mode])
	return c.err
}

func (c *rfm69Chip) WriteTxPowerMin() error { return c.WriteTxPower(-18, false) }

func (c *rfm69Chip) WriteSync(length, tolerance byte, sync [8]byte) error {
	cfg := byte(0x80) | (length-1)<<3 | tolerance&0x07
	data := append([]byte{cfg}, sync[:length]...)
	return c.writeReg(rfm69RegSyncConfig, data...)
}

func (c *rfm69Chip) ClearIrqFlags() error {
	return c.writeReg(rfm69RegIrqFlags1, 0, 0)
}

func (c *rfm69Chip) ReadIrqFlags() (uint16, error) {
	f1, err := c.readReg(rfm69RegIrqFlags1)
	if err != nil {
		return 0, err
	}
	f2, err := c.readReg(rfm69RegIrqFlags2)
	if err != nil {
		return 0, err
	}
	return uint16(f1)<<8 | uint16(f2), nil
}

func (c *rfm69Chip) DIO0IsOn() (bool, error) {
	if c.dio0 == nil {
		return false, nil
	}
	return c.dio0.Read() == GpioHigh, c.err
}

func (c *rfm69Chip) WritePacket(frame [26]byte) error {
	wBuf := make([]byte, 27)
	rBuf := make([]byte, 27)
	wBuf[0] = rfm69RegFifo | 0x80
	copy(wBuf[1:], frame[:])
	if err := c.spi.Tx(wBuf, rBuf); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *rfm69Chip) ReadPacket() (frame [26]byte, errMask [26]byte, err error) {
	wBuf := make([]byte, 27)
	rBuf := make([]byte, 27)
	wBuf[0] = rfm69RegFifo & 0x7f
	if e := c.spi.Tx(wBuf, rBuf); e != nil {
		return frame, errMask, c.fail(e)
	}
	copy(frame[:], rBuf[1:])
	return frame, errMask, nil
}

func (c *rfm69Chip) WaitPacketSent(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		flags, err := c.ReadIrqFlags()
		if err != nil {
			return false
		}
		if flags&rfm69Irq2PacketSent != 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func (c *rfm69Chip) ReadRSSI() (int8, error) {
	v, err := c.readReg(rfm69RegRssiValue)
	return int8(-int16(v) / 2), err
}

func (c *rfm69Chip) TriggerRSSI() error {
	return c.writeReg(rfm69RegRssiConfig, 0x01)
}

func (c *rfm69Chip) TriggerTemp() error {
	mode := c.mode
	c.WriteMode(ModeStandby)
	err := c.writeReg(rfm69RegTemp1, 0x08)
	c.WriteMode(rfm69FromChipMode[mode])
	return err
}

func (c *rfm69Chip) ReadTemp() (int8, error) {
	v, err := c.readReg(rfm69RegTemp2)
	if err != nil {
		return 0, err
	}
	return int8(int16(v)*-1 + 166), nil // rough raw-to-degC, chip-specific offset
}

func (c *rfm69Chip) ReadVersion() (byte, error) {
	return c.readReg(rfm69RegVersion)
}
