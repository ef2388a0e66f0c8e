// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package rssi implements the RF task's noise-floor tracker: a two-stage
// (second-order) IIR lowpass filter over raw RSSI readings, used both to set
// the listen-before-talk noise threshold and to report the per-second
// average signal level in the $POGNR telemetry sentence.
package rssi

// shift sets the filter's time constant: each stage moves 1/2^shift of the
// way toward the new sample per update, in Q8 fixed point.
const shift = 4

// Tracker is a second-order (two cascaded single-pole) IIR lowpass filter
// over int8 dBm RSSI samples, using integer fixed-point arithmetic in the
// same bit-shift-scaling idiom the chip drivers use for their own readouts
// rather than floating point.
type Tracker struct {
	stage1 int32 // Q8 fixed point, first EMA stage
	stage2 int32 // Q8 fixed point, second EMA stage, fed from stage1
	n      int   // samples folded in since the last Reset
}

// New returns a Tracker primed at initial, so the filter doesn't ramp up
// from zero on the first few samples.
func New(initial int8) *Tracker {
	t := &Tracker{}
	t.Reset(initial)
	return t
}

// Reset reinitializes both filter stages to initial and zeroes the sample
// count.
func (t *Tracker) Reset(initial int8) {
	t.stage1 = int32(initial) << 8
	t.stage2 = t.stage1
	t.n = 0
}

// Update folds one raw RSSI sample (dBm) into the filter.
func (t *Tracker) Update(sample int8) {
	in := int32(sample) << 8
	t.stage1 += (in - t.stage1) >> shift
	t.stage2 += (t.stage1 - t.stage2) >> shift
	t.n++
}

// Value returns the current filtered noise-floor estimate, in dBm.
func (t *Tracker) Value() int8 { return int8(t.stage2 >> 8) }

// Count returns how many samples have been folded in since the last Reset;
// while it is zero the $POGNR average-RSSI field is left blank.
func (t *Tracker) Count() int { return t.n }

// Threshold returns the channel-busy RSSI threshold for listen-before-talk:
// the filtered noise floor plus a fixed margin above which a channel is
// considered occupied.
func (t *Tracker) Threshold(marginDB int8) int8 {
	return t.Value() + marginDB
}
