// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rftask

// credit is the saturating TX_Credit counter: incremented once per
// half-slot, decremented by one per successful transmission, capped at 255
// (it sticks there instead of wrapping to 0). This is what enforces the
// long-run <=1%-duty-cycle budget cooperatively, without wall-clock policing.
type credit struct {
	v uint8
}

func (c *credit) increment() {
	if c.v < 255 {
		c.v++
	}
}

func (c *credit) available() bool { return c.v > 0 }

func (c *credit) decrement() {
	if c.v > 0 {
		c.v--
	}
}

func (c *credit) value() uint8 { return c.v }
