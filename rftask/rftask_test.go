// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rftask

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kedder/diy-tracker/freqplan"
	"github.com/kedder/diy-tracker/gpsfeed"
	"github.com/kedder/diy-tracker/params"
	"github.com/kedder/diy-tracker/rssi"
	"github.com/kedder/diy-tracker/sinks"
	"github.com/kedder/diy-tracker/transceiver"
)

// fakeGPS is a gpsfeed.Source with a fixed current fix and a fixed
// 2-seconds-prior reference, for deterministic packet composition.
type fakeGPS struct {
	cur, ref      gpsfeed.Position
	timeSinceLock time.Duration
	unixTime      int64
	sec           uint8
}

func (g *fakeGPS) Position(secOffset int) gpsfeed.Position {
	if secOffset == 0 {
		return g.cur
	}
	return g.ref
}
func (g *fakeGPS) TimeSinceLock() time.Duration { return g.timeSinceLock }
func (g *fakeGPS) UnixTime() int64              { return g.unixTime }
func (g *fakeGPS) Sec() uint8                   { return g.sec }

func newFakeGPS() *fakeGPS {
	cur := gpsfeed.NewPosition()
	cur.Latitude = 450000000
	cur.Longitude = 70000000
	cur.LatCosine = 1 << 16
	cur.Altitude = 10000 // 1000.0m in tenths
	cur.Sec = 30
	ref := gpsfeed.NewPosition()
	ref.Latitude = 449998000
	ref.Longitude = 70000000
	ref.LatCosine = 1 << 16
	ref.Altitude = 9900
	ref.Sec = 28
	return &fakeGPS{cur: cur, ref: ref, unixTime: 1700000000, sec: 30}
}

func testParams() params.Static {
	return params.Static{
		AddressVal: 0xABCDEF,
		TxPowerVal: 14,
		RegionVal:  freqplan.RegionEuropeAfrica,
	}
}

func Test_BringUpRetriesUntilVersionIsPlausible(t *testing.T) {
	chip := &fakeChip{version: 0x00}
	clk := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	s := &state{
		cfg: Config{Chip: chip, Params: testParams()},
		clk: clk,
		log: func(string, ...interface{}) {
			attempts++
			if attempts >= 3 {
				cancel()
			}
		},
		rnd:    NewRandom(1),
		noise:  rssi.New(-100),
		region: freqplan.RegionEuropeAfrica,
	}

	err := s.bringUp(ctx)
	if err == nil {
		t.Fatal("bringUp should have returned ctx's cancellation error")
	}
	if attempts < 3 {
		t.Fatalf("expected at least 3 retries, got %d", attempts)
	}
}

func Test_BringUpSucceedsOnPlausibleVersion(t *testing.T) {
	chip := &fakeChip{version: 0x24}
	clk := newFakeClock()
	s := &state{
		cfg:    Config{Chip: chip, Params: testParams()},
		clk:    clk,
		log:    noopLog,
		rnd:    NewRandom(1),
		noise:  rssi.New(-100),
		region: freqplan.RegionEuropeAfrica,
	}

	if err := s.bringUp(context.Background()); err != nil {
		t.Fatalf("bringUp failed: %v", err)
	}
	if len(chip.modes) == 0 || chip.modes[len(chip.modes)-1] != transceiver.ModeReceive {
		t.Fatal("bringUp should leave the chip in receive mode")
	}
}

func Test_ComposeOwnPacketDerivesVelocityFromReference(t *testing.T) {
	s := &state{cfg: Config{GPS: newFakeGPS(), Params: testParams()}}
	s.composeOwnPacket()

	if !s.curReady {
		t.Fatal("composeOwnPacket should have produced a Ready packet")
	}
	if s.curPkt.Address() != testParams().AddressVal {
		t.Fatalf("packet address = %06X, want %06X", s.curPkt.Address(), testParams().AddressVal)
	}
	// cur is 100 tenths of a meter above ref, 2 seconds apart: 5 m/s, i.e.
	// 50 in the packet's 0.1 m/s climb units.
	if got := s.curPkt.Climb(); got != 50 {
		t.Fatalf("packet climb = %d, want 50 (0.1 m/s units)", got)
	}
}

func Test_ComposeOwnPacketStaleAfterGPSLossKeepsReadyTrue(t *testing.T) {
	gps := newFakeGPS()
	s := &state{cfg: Config{GPS: gps, Params: testParams()}}
	s.composeOwnPacket()
	if !s.curReady {
		t.Fatal("first composition should have succeeded")
	}

	gps.cur = gpsfeed.Position{} // incomplete: lock lost
	gps.timeSinceLock = 31 * time.Second
	s.composeOwnPacket()

	if !s.curReady {
		t.Fatal("a Ready packet should stay Ready after going stale")
	}
	if s.curPkt.TimeOfSecond() != 0x3F {
		t.Fatalf("TimeOfSecond = %#x, want the stale sentinel 0x3F", s.curPkt.TimeOfSecond())
	}
}

func Test_ComposeOwnPacketStaleSealsToDecodableFrame(t *testing.T) {
	gps := newFakeGPS()
	s := &state{cfg: Config{GPS: gps, Params: testParams()}}
	s.composeOwnPacket()

	gps.cur = gpsfeed.Position{}
	gps.timeSinceLock = 31 * time.Second
	s.composeOwnPacket()

	txPkt := s.curPkt
	txPkt.Seal()
	txPkt.Dewhiten()
	if n := txPkt.CheckFEC(); n != 0 {
		t.Fatalf("CheckFEC() = %d interleaves inconsistent, want 0 (sealing once should produce a clean frame)", n)
	}
	if txPkt.TimeOfSecond() != 0x3F {
		t.Fatalf("decoded TimeOfSecond = %#x, want the stale sentinel 0x3F", txPkt.TimeOfSecond())
	}
}

func Test_ComposeOwnPacketNoPositionLeavesNotReady(t *testing.T) {
	gps := &fakeGPS{} // zero value: Position(0) is incomplete
	s := &state{cfg: Config{GPS: gps, Params: testParams()}}
	s.composeOwnPacket()
	if s.curReady {
		t.Fatal("no GPS fix at all: curReady should remain false")
	}
}

func Test_RunRequiresChip(t *testing.T) {
	err := Run(context.Background(), Config{GPS: newFakeGPS(), Params: testParams(), PPSPhase: func() time.Duration { return 0 }})
	if err == nil {
		t.Fatal("Run should reject a Config with no Chip")
	}
}

// cancelingClock wraps a fakeClock and cancels a context once simulated
// time has advanced past limit, so a test can let Run's per-second loop
// execute a bounded number of simulated seconds without a real wall-clock
// wait or an unbounded loop.
type cancelingClock struct {
	*fakeClock
	cancel   context.CancelFunc
	start    time.Time
	limit    time.Duration
	canceled bool
}

func (c *cancelingClock) Sleep(d time.Duration) {
	c.fakeClock.Sleep(d)
	if !c.canceled && c.fakeClock.Now().Sub(c.start) >= c.limit {
		c.canceled = true
		c.cancel()
	}
}

func Test_RunOneSecondEmitsPOGNRAndStopsOnCancel(t *testing.T) {
	chip := &fakeChip{version: 0x24, rssiSeq: []int8{-95}, waitSentOK: true}
	base := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	clk := &cancelingClock{fakeClock: base, cancel: cancel, start: base.Now(), limit: 2500 * time.Millisecond}
	gps := newFakeGPS()
	console := &captureSink{}

	cfg := Config{
		Chip:     chip,
		GPS:      gps,
		Params:   testParams(),
		PPSPhase: func() time.Duration { return 0 },
		Sinks:    []sinks.Sink{console},
		Clock:    clk,
		Seed:     7,
	}

	err := Run(ctx, cfg)
	if err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	found := false
	for _, line := range console.lines {
		if strings.HasPrefix(line, "$POGNR") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected at least one $POGNR line on the console sink")
	}
}

type captureSink struct {
	lines []string
}

func (c *captureSink) Write(line string) { c.lines = append(c.lines, line) }
