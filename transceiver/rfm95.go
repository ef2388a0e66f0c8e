// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package transceiver

import (
	"errors"
	"time"
)

// rfm95 register map, adapted from sx1276/registers.go (Semtech SX1276 /
// HopeRF RFM95). The chip is run in its FSK-compatible mode (not LoRa) so it
// can speak the same 26-byte fixed-length OGN frame as the RFM69 family;
// register numbers below are the FSK-mode aliases of the sx1276 map.
const (
	rfm95RegFifo        = 0x00
	rfm95RegOpMode      = 0x01
	rfm95RegBitrateMsb  = 0x02
	rfm95RegFdevMsb     = 0x04
	rfm95RegFrfMsb      = 0x06
	rfm95RegPaConfig    = 0x09
	rfm95RegPaRamp      = 0x0A
	rfm95RegOcp         = 0x0B
	rfm95RegRxBw        = 0x12
	rfm95RegAfcBw       = 0x13
	rfm95RegRssiConfig  = 0x0E
	rfm95RegRssiValue   = 0x11
	rfm95RegDioMapping1 = 0x40
	rfm95RegIrqFlags1   = 0x3E
	rfm95RegIrqFlags2   = 0x3F
	rfm95RegSyncConfig  = 0x27
	rfm95RegSyncValue1  = 0x28
	rfm95RegPacketConfig2 = 0x31
	rfm95RegPayloadLength = 0x32
	rfm95RegFifoThresh  = 0x35
	rfm95RegTemp        = 0x3C
	rfm95RegVersion     = 0x42
	rfm95RegPaDac       = 0x4D

	rfm95ModeSleep   = 0x00
	rfm95ModeStandby = 0x01
	rfm95ModeFS      = 0x02
	rfm95ModeTx      = 0x03
	rfm95ModeRx      = 0x05 // RX continuous, FSK mode

	rfm95Irq1ModeReady  = 1 << 7
	rfm95Irq2PacketSent = 1 << 3
)

var rfm95ToChipMode = map[Mode]byte{
	ModeSleep:    rfm95ModeSleep,
	ModeStandby:  rfm95ModeStandby,
	ModeFS:       rfm95ModeFS,
	ModeTransmit: rfm95ModeTx,
	ModeReceive:  rfm95ModeRx,
}

var rfm95FromChipMode = map[byte]Mode{
	rfm95ModeSleep:   ModeSleep,
	rfm95ModeStandby: ModeStandby,
	rfm95ModeFS:      ModeFS,
	rfm95ModeTx:      ModeTransmit,
	rfm95ModeRx:      ModeReceive,
}

// rfm95Chip drives a HopeRF RFM95 (Semtech SX1276) in FSK mode over SPI,
// synchronously: the RF task is this chip's only caller and polls it
// directly, so there is no interrupt-servicing goroutine here.
type rfm95Chip struct {
	spi    SPI
	dio0   GPIO
	resetP GPIO
	mode   byte
	power  int8
	err    error
	log    LogPrintf

	baseFreqHz uint32
	spacingHz  uint32
	channel    byte
}

// NewRFM95 returns a Chip backed by an RFM95-style chip run in FSK mode on
// spi, with dio0 polled for IRQ status and resetPin used for hard reset.
func NewRFM95(spi SPI, dio0, resetPin GPIO, log LogPrintf) Chip {
	if log == nil {
		log = noopLog
	}
	return &rfm95Chip{spi: spi, dio0: dio0, resetP: resetPin, log: log}
}

func (c *rfm95Chip) Error() error { return c.err }

func (c *rfm95Chip) fail(err error) error {
	if c.err == nil {
		c.err = err
	}
	return c.err
}

func (c *rfm95Chip) writeReg(addr byte, data ...byte) error {
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

func (c *rfm95Chip) readReg(addr byte) (byte, error) {
	if c.err != nil {
		return 0, c.err
	}
	var buf [2]byte
	if err := c.spi.Tx([]byte{addr & 0x7f, 0}, buf[:]); err != nil {
		return 0, c.fail(err)
	}
	return buf[1], nil
}

func (c *rfm95Chip) Reset(hard bool) error {
	c.err = nil
	if hard && c.resetP != nil {
		c.resetP.Out(GpioLow)
		time.Sleep(100 * time.Microsecond)
		c.resetP.Out(GpioHigh)
		time.Sleep(5 * time.Millisecond)
	}
	c.mode = rfm95ModeStandby
	for _, reg := range [][2]byte{
		{rfm95RegOpMode, 0x08}, // FSK + LF range + sleep
		{rfm95RegOcp, 0x32},
		{rfm95RegSyncConfig, 0x91}, // auto-restart, 2 sync bytes
		{rfm95RegPacketConfig2, 0x00},
		{rfm95RegPayloadLength, 26},
		{rfm95RegFifoThresh, 0xA0},
		{rfm95RegDioMapping1, 0x00},
	} {
		if err := c.writeReg(reg[0], reg[1]); err != nil {
			return err
		}
	}
	return c.err
}

func (c *rfm95Chip) WriteMode(m Mode) error {
	raw, ok := rfm95ToChipMode[m]
	if !ok {
		return c.fail(errors.New("transceiver: rfm95: invalid mode"))
	}
	if c.mode == raw {
		return c.err
	}
	opMode := byte(0x08) | raw // keep FSK + LF range bits set
	c.writeReg(rfm95RegOpMode, opMode)
	for start := time.Now(); time.Since(start) < 100*time.Millisecond; {
		v, err := c.readReg(rfm95RegIrqFlags1)
		if err != nil {
			return err
		}
		if v&rfm95Irq1ModeReady != 0 {
			c.mode = raw
			time.Sleep(settleTime)
			return nil
		}
	}
	return c.fail(errors.New("transceiver: rfm95: timeout switching modes"))
}

func (c *rfm95Chip) ReadMode() (Mode, error) {
	return rfm95FromChipMode[c.mode], c.err
}

// SetChannel selects channel ch within the base frequency plus spacing
// previously given to SetBaseFrequency/SetChannelSpacing, and reprograms the
// carrier immediately so the hop actually happens before the next half-slot.
func (c *rfm95Chip) SetChannel(ch byte) error {
	c.channel = ch
	return c.programFrequency()
}

func (c *rfm95Chip) SetBaseFrequency(hz uint32) error {
	c.baseFreqHz = hz
	return c.programFrequency()
}

func (c *rfm95Chip) SetChannelSpacing(hz uint32) error {
	c.spacingHz = hz
	return c.programFrequency()
}

// programFrequency writes the FRF registers for the current base frequency,
// channel spacing and channel, i.e. baseFreqHz + channel*spacingHz.
func (c *rfm95Chip) programFrequency() error {
	mode := c.mode
	if err := c.WriteMode(ModeStandby); err != nil {
		return err
	}
	hz := c.baseFreqHz + uint32(c.channel)*c.spacingHz
	frf := (uint64(hz) << 2) / (32000000 >> 11)
	err := c.writeReg(rfm95RegFrfMsb, byte(frf>>10), byte(frf>>2), byte(frf<<6))
	c.WriteMode(rfm95FromChipMode[mode])
	return err
}

func (c *rfm95Chip) SetFrequencyCorrection(ppb int32) error { return nil }

func (c *rfm95Chip) WriteTxPower(dBm int8, hwVariant bool) error {
	mode := c.mode
	c.WriteMode(ModeStandby)
	if hwVariant {
		// PA_BOOST pin, up to +20dBm with PA_DAC boost.
		if dBm > 20 {
			dBm = 20
		}
		if dBm > 17 {
			c.writeReg(rfm95RegPaDac, 0x87)
		} else {
			c.writeReg(rfm95RegPaDac, 0x84)
		}
		level := dBm - 2
		if level < 0 {
			level = 0
		}
		c.writeReg(rfm95RegPaConfig, 0x80|byte(level))
	} else {
		if dBm > 14 {
			dBm = 14
		}
		level := dBm + 1
		if level < 0 {
			level = 0
		}
		c.writeReg(rfm95RegPaConfig, byte(level))
	}
	c.power = dBm
	c.WriteMode(rfm95FromChipMode[mode])
	return c.err
}

func (c *rfm95Chip) WriteTxPowerMin() error { return c.WriteTxPower(-18, false) }

func (c *rfm95Chip) WriteSync(length, tolerance byte, sync [8]byte) error {
	cfg := byte(0x90) | (length-1)&0x07
	data := append([]byte{cfg}, sync[:length]...)
	return c.writeReg(rfm95RegSyncConfig, data...)
}

func (c *rfm95Chip) ClearIrqFlags() error {
	return c.writeReg(rfm95RegIrqFlags1, 0xFF, 0xFF)
}

func (c *rfm95Chip) ReadIrqFlags() (uint16, error) {
	f1, err := c.readReg(rfm95RegIrqFlags1)
	if err != nil {
		return 0, err
	}
	f2, err := c.readReg(rfm95RegIrqFlags2)
	if err != nil {
		return 0, err
	}
	return uint16(f1)<<8 | uint16(f2), nil
}

func (c *rfm95Chip) DIO0IsOn() (bool, error) {
	if c.dio0 == nil {
		return false, nil
	}
	return c.dio0.Read() == GpioHigh, c.err
}

func (c *rfm95Chip) WritePacket(frame [26]byte) error {
	wBuf := make([]byte, 27)
	rBuf := make([]byte, 27)
	wBuf[0] = rfm95RegFifo | 0x80
	copy(wBuf[1:], frame[:])
	if err := c.spi.Tx(wBuf, rBuf); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *rfm95Chip) ReadPacket() (frame [26]byte, errMask [26]byte, err error) {
	wBuf := make([]byte, 27)
	rBuf := make([]byte, 27)
	wBuf[0] = rfm95RegFifo & 0x7f
	if e := c.spi.Tx(wBuf, rBuf); e != nil {
		return frame, errMask, c.fail(e)
	}
	copy(frame[:], rBuf[1:])
	return frame, errMask, nil
}

func (c *rfm95Chip) WaitPacketSent(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		flags, err := c.ReadIrqFlags()
		if err != nil {
			return false
		}
		if flags&rfm95Irq2PacketSent != 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func (c *rfm95Chip) ReadRSSI() (int8, error) {
	v, err := c.readReg(rfm95RegRssiValue)
	return int8(-int16(v) / 2), err
}

func (c *rfm95Chip) TriggerRSSI() error {
	return c.writeReg(rfm95RegRssiConfig, 0x08)
}

func (c *rfm95Chip) TriggerTemp() error { return nil } // sx1276 has no on-demand temp trigger bit in FSK mode

func (c *rfm95Chip) ReadTemp() (int8, error) {
	v, err := c.readReg(rfm95RegTemp)
	if err != nil {
		return 0, err
	}
	return int8(v), nil
}

func (c *rfm95Chip) ReadVersion() (byte, error) {
	return c.readReg(rfm95RegVersion)
}
