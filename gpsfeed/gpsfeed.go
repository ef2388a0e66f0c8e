// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package gpsfeed defines the read-only contract the RF task uses to
// consume GPS fixes from a separate GPS feed goroutine. Parsing NMEA/UBX
// and maintaining the positional history ring are out of scope for this
// core (see SPEC_FULL.md §1) — this package only names the interface a
// real feed implementation satisfies.
package gpsfeed

import "time"

// Position is a read-only, seqlock-like snapshot of one GPS fix. The
// producing feed may still be mid-update when a consumer reads it (it is
// not behind a mutex, for the same single-writer/many-reader reason a
// seqlock avoids one); callers must re-check Complete()&&Valid() after
// reading every field they need, and discard the snapshot if either is now
// false.
type Position struct {
	complete bool
	valid    bool

	Latitude  int32 // 1/10000 minute units
	Longitude int32 // 1/10000 minute units
	LatCosine int32 // Q16.16 fixed point cosine of Latitude, precomputed

	Altitude int32 // meters, in tenths (0.1m resolution)

	UnixTime int64 // seconds since epoch at time of fix
	Sec      uint8 // UTC second within the minute, 0-59

	TimeSinceLock time.Duration // how long GPS lock has been continuously held
}

// Complete reports whether every field of this snapshot was written by a
// single, uninterrupted update from the feed.
func (p Position) Complete() bool { return p.complete }

// Valid reports whether the feed considers this snapshot a valid fix (as
// opposed to, say, a dead-reckoned placeholder before first lock).
func (p Position) Valid() bool { return p.valid }

// NewPosition constructs a complete, valid Position, for feed
// implementations and tests. Fields are filled in via the returned value.
func NewPosition() Position {
	return Position{complete: true, valid: true}
}

// Source is the read-only GPS feed contract the RF task consumes. A real
// implementation runs its own goroutine parsing GPS sentences and
// maintaining a short positional history so Position can answer
// second-offset queries (e.g. "where was I 2 seconds ago", used for the
// differential velocity fields); that implementation is out of scope here.
type Source interface {
	// Position returns the fix secOffset seconds before the current one (0
	// for the current fix, negative is rejected by well-behaved
	// implementations). Returns the zero Position (Complete()==false) if no
	// fix exists that far back.
	Position(secOffset int) Position

	// TimeSinceLock reports how long GPS lock has been continuously held,
	// or a duration that makes "stale" checks (>30s) true if never locked.
	TimeSinceLock() time.Duration

	// UnixTime and Sec expose the feed's own clock directly, for the RF
	// task's per-second scheduling, independent of any particular Position.
	UnixTime() int64
	Sec() uint8
}
