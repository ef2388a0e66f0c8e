// Copyright 2017 by Thorsten von Eicken, see LICENSE file

package transceiver

import (
	"errors"
	"sync"

	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/spi"
)

// muxConn is a periph.io-backed SPI connection for a board that multiplexes
// both chip families (an RFM69 and an RFM95) onto a single SPI chip-select
// line via an external 2:1 demux, selected by a GPIO pin. This lets
// cmd/rfcore-sim's config pick a chip family without re-wiring hardware.
type muxConn struct {
	mu     *sync.Mutex
	conn   *spi.Conn
	port   spi.Port
	selPin gpio.PinIO
	sel    gpio.Level
}

// NewMuxedSPI returns a (Chip A, Chip B) pair of transceiver.SPI values that
// share port but select between the two chip devices via selPin: Low picks
// the first, High picks the second.
func NewMuxedSPI(port spi.PortCloser, selPin gpio.PinIO) (SPI, SPI) {
	var mu sync.Mutex
	var shared spi.Conn
	low := &muxConn{&mu, &shared, port, selPin, gpio.Low}
	high := &muxConn{&mu, &shared, port, selPin, gpio.High}
	return &muxSPI{low}, &muxSPI{high}
}

func (c *muxConn) devParams(maxHz int64, mode spi.Mode, bits int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *c.conn == nil {
		conn, err := c.port.DevParams(maxHz, mode, bits)
		if err != nil {
			return err
		}
		*c.conn = conn
	}
	return nil
}

func (c *muxConn) tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selPin.Out(c.sel)
	return (*c.conn).Tx(w, r)
}

func (c *muxConn) Duplex() conn.Duplex           { return conn.Full }
func (c *muxConn) TxPackets(p []spi.Packet) error { return errors.New("transceiver: TxPackets not implemented") }
func (c *muxConn) LimitSpeed(maxHz int64) error   { return errors.New("transceiver: LimitSpeed not implemented") }

// muxSPI adapts a muxConn to the narrow transceiver.SPI interface the chip
// drivers depend on, the same role spishim.go plays for embd.
type muxSPI struct {
	c *muxConn
}

func (m *muxSPI) Tx(w, r []byte) error { return m.c.tx(w, r) }
func (m *muxSPI) Speed(hz int64) error { return m.c.devParams(hz, spi.Mode0, 8) }
func (m *muxSPI) Configure(mode int, bits int) error {
	return m.c.devParams(4000000, spi.Mode(mode), bits)
}
func (m *muxSPI) Close() error { return nil }

var _ SPI = &muxSPI{}
