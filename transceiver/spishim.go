// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package transceiver

// This file is a thin SPI/GPIO shim so the chip drivers below depend on a
// narrow interface instead of directly on github.com/kidoman/embd, exactly
// as the teacher's own shim.go does it.

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kidoman/embd"
)

// SPI is the narrow bus interface the chip drivers use.
type SPI interface {
	Tx(w, r []byte) error
	Speed(hz int64) error
	Configure(mode int, bits int) error
	Close() error
}

const (
	SPIMode0 = 0x0
	SPIMode1 = 0x1
	SPIMode2 = 0x2
	SPIMode3 = 0x3
)

// GPIO is the narrow pin interface used for DIO0 (interrupt line, polled
// here rather than watched) and chip-select/reset lines.
type GPIO interface {
	In(edge int) error
	Read() int
	WaitForEdge(timeout time.Duration) bool
	Out(level int)
	Number() int
}

const (
	GpioLow        = 0
	GpioHigh       = 1
	GpioNoEdge     = 0
	GpioRisingEdge = 1
)

// NewSPI returns an embd-backed SPI bus at 4MHz, mode 0, 8 bits — the only
// configuration either chip family needs.
func NewSPI(busID int) SPI {
	return &spi{embd.NewSPIBus(embd.SPIMode0, byte(busID), 4000000, 8, 0)}
}

type spi struct {
	embd.SPIBus
}

func (s *spi) Tx(w, r []byte) error {
	copy(r, w)
	return s.TransferAndReceiveData(r)
}

func (s *spi) Speed(hz int64) error {
	if hz != 4000000 {
		return errors.New("transceiver: SPI: only 4MHz supported")
	}
	return nil
}

func (s *spi) Configure(mode int, bits int) error {
	if mode != SPIMode0 {
		return errors.New("transceiver: SPI: only mode 0 supported")
	}
	if bits != 8 {
		return errors.New("transceiver: SPI: only 8-bit mode supported")
	}
	return nil
}

// NewGPIO returns an embd-backed digital pin by name (e.g. a chip or header
// pin name from embd/host/chip).
func NewGPIO(name string) GPIO {
	g, err := embd.NewDigitalPin(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transceiver: NewDigitalPin(%s): %s\n", name, err)
		return nil
	}
	return &gpio{p: g}
}

type gpio struct {
	p   embd.DigitalPin
	dir embd.Direction
}

func (g *gpio) In(edge int) error {
	if err := g.p.SetDirection(embd.In); err != nil {
		return err
	}
	g.dir = embd.In
	return nil
}

func (g *gpio) Read() int {
	v, _ := g.p.Read()
	return v
}

// WaitForEdge busy-polls Read rather than registering an interrupt watch,
// since both chip drivers here are purely polled (§4.5 REDESIGN FLAG
// resolution): the RF task owns the single loop and calls DIO0IsOn itself.
func (g *gpio) WaitForEdge(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if g.Read() == GpioHigh {
			return true
		}
		time.Sleep(100 * time.Microsecond)
	}
	return false
}

func (g *gpio) Out(level int) {
	if g.dir != embd.Out {
		g.p.SetDirection(embd.Out)
		g.dir = embd.Out
	}
	g.p.Write(level)
}

func (g *gpio) Number() int { return g.p.N() }
