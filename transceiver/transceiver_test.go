// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package transceiver

import (
	"errors"
	"testing"
	"time"
)

// fakeSPI is an in-memory register file standing in for a real chip: writes
// (addr|0x80) store bytes starting at addr, reads return them back shifted
// by the one dummy byte every SPI register transaction spends on the
// address itself.
type fakeSPI struct {
	regs    [256]byte
	failErr error
}

func (f *fakeSPI) Tx(w, r []byte) error {
	if f.failErr != nil {
		return f.failErr
	}
	addr := w[0]
	if addr&0x80 != 0 {
		reg := addr &^ 0x80
		for i, b := range w[1:] {
			f.regs[int(reg)+i] = b
		}
		return nil
	}
	reg := addr & 0x7f
	for i := 1; i < len(r); i++ {
		r[i] = f.regs[int(reg)+i-1]
	}
	return nil
}
func (f *fakeSPI) Speed(hz int64) error              { return nil }
func (f *fakeSPI) Configure(mode int, bits int) error { return nil }
func (f *fakeSPI) Close() error                       { return nil }

func Test_RFM69_ResetAndVersion(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	spi.regs[rfm69RegVersion] = 0x24
	c := NewRFM69(spi, nil, nil, false, nil)

	if err := c.Reset(false); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	v, err := c.ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if v != 0x24 {
		t.Fatalf("ReadVersion = %#x, want 0x24", v)
	}
	if m, _ := c.ReadMode(); m != ModeStandby {
		t.Fatalf("ReadMode after Reset = %v, want ModeStandby", m)
	}
}

func Test_RFM69_WriteModeTransitions(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)

	if err := c.WriteMode(ModeReceive); err != nil {
		t.Fatalf("WriteMode(ModeReceive): %v", err)
	}
	if m, _ := c.ReadMode(); m != ModeReceive {
		t.Fatalf("ReadMode = %v, want ModeReceive", m)
	}
	if err := c.WriteMode(ModeTransmit); err != nil {
		t.Fatalf("WriteMode(ModeTransmit): %v", err)
	}
	if m, _ := c.ReadMode(); m != ModeTransmit {
		t.Fatalf("ReadMode = %v, want ModeTransmit", m)
	}
}

func Test_RFM69_WriteModeTimesOutWithoutModeReady(t *testing.T) {
	spi := &fakeSPI{} // IRQFLAGS1 stays 0: mode-ready bit never set
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)

	if err := c.WriteMode(ModeReceive); err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
	if c.Error() == nil {
		t.Fatalf("Error() should be set after a mode-switch timeout")
	}
}

func Test_RFM69_PersistentErrorLatches(t *testing.T) {
	spi := &fakeSPI{failErr: errors.New("spi bus fault")}
	c := NewRFM69(spi, nil, nil, false, nil)
	if err := c.Reset(false); err == nil {
		t.Fatalf("expected Reset to surface the SPI error")
	}
	// A later unrelated call must return the same latched error, not retry.
	if _, err := c.ReadVersion(); err == nil {
		t.Fatalf("expected latched error from ReadVersion")
	}
}

func Test_RFM69_ReadRSSIConversion(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	spi.regs[rfm69RegRssiValue] = 180 // -90 dBm in half-dB units
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)
	v, err := c.ReadRSSI()
	if err != nil {
		t.Fatalf("ReadRSSI: %v", err)
	}
	if v != -90 {
		t.Fatalf("ReadRSSI = %d, want -90", v)
	}
}

func Test_RFM95_ResetAndVersion(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm95RegIrqFlags1] = rfm95Irq1ModeReady
	spi.regs[rfm95RegVersion] = 0x12
	c := NewRFM95(spi, nil, nil, nil)

	if err := c.Reset(false); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	v, err := c.ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if v != 0x12 {
		t.Fatalf("ReadVersion = %#x, want 0x12", v)
	}
}

func Test_RFM95_WriteModeTransitions(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm95RegIrqFlags1] = rfm95Irq1ModeReady
	c := NewRFM95(spi, nil, nil, nil)
	c.Reset(false)

	if err := c.WriteMode(ModeTransmit); err != nil {
		t.Fatalf("WriteMode(ModeTransmit): %v", err)
	}
	if m, _ := c.ReadMode(); m != ModeTransmit {
		t.Fatalf("ReadMode = %v, want ModeTransmit", m)
	}
}

func Test_RFM95_WriteTxPowerDoesNotError(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm95RegIrqFlags1] = rfm95Irq1ModeReady
	c := NewRFM95(spi, nil, nil, nil)
	c.Reset(false)
	if err := c.WriteTxPower(14, true); err != nil {
		t.Fatalf("WriteTxPower: %v", err)
	}
	if err := c.Error(); err != nil {
		t.Fatalf("Error() = %v, want nil", err)
	}
}

func Test_RFM69_WaitPacketSent(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	spi.regs[rfm69RegIrqFlags2] = rfm69Irq2PacketSent
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)
	if !c.WaitPacketSent(10 * time.Millisecond) {
		t.Fatalf("WaitPacketSent should return true immediately when the flag is already set")
	}
}

func Test_RFM69_WaitPacketSentTimesOut(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)
	if c.WaitPacketSent(2 * time.Millisecond) {
		t.Fatalf("WaitPacketSent should time out when the flag never sets")
	}
}

func Test_RFM69_SetChannelMovesFRFRegisters(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)

	if err := c.SetBaseFrequency(868200000); err != nil {
		t.Fatalf("SetBaseFrequency: %v", err)
	}
	if err := c.SetChannelSpacing(200000); err != nil {
		t.Fatalf("SetChannelSpacing: %v", err)
	}
	base := [3]byte{spi.regs[rfm69RegFrfMsb], spi.regs[rfm69RegFrfMsb+1], spi.regs[rfm69RegFrfMsb+2]}

	if err := c.SetChannel(3); err != nil {
		t.Fatalf("SetChannel: %v", err)
	}
	hopped := [3]byte{spi.regs[rfm69RegFrfMsb], spi.regs[rfm69RegFrfMsb+1], spi.regs[rfm69RegFrfMsb+2]}

	if base == hopped {
		t.Fatal("SetChannel should reprogram the FRF registers away from the base frequency")
	}
}

func Test_RFM95_SetChannelMovesFRFRegisters(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm95RegIrqFlags1] = rfm95Irq1ModeReady
	c := NewRFM95(spi, nil, nil, nil)
	c.Reset(false)

	if err := c.SetBaseFrequency(868200000); err != nil {
		t.Fatalf("SetBaseFrequency: %v", err)
	}
	if err := c.SetChannelSpacing(200000); err != nil {
		t.Fatalf("SetChannelSpacing: %v", err)
	}
	base := [3]byte{spi.regs[rfm95RegFrfMsb], spi.regs[rfm95RegFrfMsb+1], spi.regs[rfm95RegFrfMsb+2]}

	if err := c.SetChannel(3); err != nil {
		t.Fatalf("SetChannel: %v", err)
	}
	hopped := [3]byte{spi.regs[rfm95RegFrfMsb], spi.regs[rfm95RegFrfMsb+1], spi.regs[rfm95RegFrfMsb+2]}

	if base == hopped {
		t.Fatal("SetChannel should reprogram the FRF registers away from the base frequency")
	}
}

func Test_WritePacketAndReadPacketRoundTrip(t *testing.T) {
	spi := &fakeSPI{}
	spi.regs[rfm69RegIrqFlags1] = rfm69Irq1ModeReady
	c := NewRFM69(spi, nil, nil, false, nil)
	c.Reset(false)

	var frame [26]byte
	for i := range frame {
		frame[i] = byte(i + 1)
	}
	if err := c.WritePacket(frame); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	got, _, err := c.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if got != frame {
		t.Fatalf("ReadPacket = %v, want %v", got, frame)
	}
}
