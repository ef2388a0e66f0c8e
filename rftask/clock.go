// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rftask

import "time"

// Clock is the task's only source of wall-clock time and its only way to
// yield, so tests can run the scheduling logic at a speed faster than real
// time without touching any global state.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// realClock is the production Clock, a thin wrapper around time.Now and
// time.Sleep, exactly as the spec's "small delay(ms) wrapper" describes.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// delay sleeps for ms milliseconds on clk: the cooperative-yield primitive
// every suspension point in the task's main loop funnels through.
func delay(clk Clock, ms int) {
	clk.Sleep(time.Duration(ms) * time.Millisecond)
}

// waitUntil sleeps on clk in small steps until deadline, so a test Clock can
// be advanced incrementally rather than jumping straight to the deadline.
func waitUntil(clk Clock, deadline time.Time) {
	for {
		now := clk.Now()
		if !now.Before(deadline) {
			return
		}
		remain := deadline.Sub(now)
		if remain > time.Millisecond {
			remain = time.Millisecond
		}
		clk.Sleep(remain)
	}
}
