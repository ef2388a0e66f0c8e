// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package rftask implements the RF task loop: the soft-real-time scheduler
// that slices each UTC second into two half-slots, hops channels per
// freqplan, transmits the local position packet or an opportunistic relay,
// receives and FEC-corrects foreign packets, and emits status telemetry.
// It runs as a single dedicated goroutine and never shares mutable state
// with any other goroutine (SPEC_FULL.md §5, §9): every field the task
// needs lives in the unexported state struct below, owned by Run's
// goroutine, never a package-level var.
package rftask

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kedder/diy-tracker/freqplan"
	"github.com/kedder/diy-tracker/gpsfeed"
	"github.com/kedder/diy-tracker/ogn"
	"github.com/kedder/diy-tracker/params"
	"github.com/kedder/diy-tracker/relayqueue"
	"github.com/kedder/diy-tracker/rssi"
	"github.com/kedder/diy-tracker/sinks"
	"github.com/kedder/diy-tracker/telemetry"
	"github.com/kedder/diy-tracker/transceiver"
)

// LogPrintf is the logging closure the task accepts, matching the
// teacher's sx1231/sx1276 convention.
type LogPrintf func(format string, v ...interface{})

func noopLog(string, ...interface{}) {}

// maxRxErr is the RxErr (Manchester-uncertain bits plus FEC-corrected bit
// flips) at or above which a received packet is dropped; only packets with
// RxErr < maxRxErr are accepted (SPEC_FULL.md §4.3).
const maxRxErr = 16

// zeroPacketRebringUp is the number of consecutive seconds with zero
// received packets after which the task suspects a wedged chip and re-runs
// bring-up (SPEC_FULL.md §4.6).
const zeroPacketRebringUp = 60

// relayNoiseMargin is the dB margin added to the noise floor to obtain the
// listen-before-talk busy threshold.
const relayNoiseMargin = 6

// halfSlotLength is the duration of each of the two half-slots making up a
// UTC second (SPEC_FULL.md §4.6: "Half-slot A (0..500ms)").
const halfSlotLength = 500 * time.Millisecond

// txSlotLength is the duration TimeSlot gets to work with inside a
// half-slot, leaving the remainder for the fixed noise-measurement/mode-
// switch bracket at the top of the half-slot.
const txSlotLength = 400 * time.Millisecond

// lbtMaxWait bounds listen-before-talk, in TimeSlot's maxWait parameter.
const lbtMaxWait = 8 * time.Millisecond

// staleGPSTimeout is how long GPS lock may be absent before a still-Ready
// packet is re-sealed with the stale time-of-second sentinel.
const staleGPSTimeout = 30 * time.Second

// Config collects everything Run needs from its caller: the chip facade,
// the GPS and parameter collaborators, a PPS phase source, and the
// telemetry sinks. Clock and Seed exist so tests can drive the loop
// deterministically; both are optional and default to production behavior.
type Config struct {
	Chip     transceiver.Chip
	GPS      gpsfeed.Source
	Params   params.Store
	PPSPhase func() time.Duration
	Sinks    []sinks.Sink
	Log      LogPrintf

	// Clock defaults to the real wall clock. Tests supply a fake so the
	// per-second cycle can run many simulated seconds instantly.
	Clock Clock
	// Seed seeds RX_Random; zero picks the package's fixed default.
	Seed uint32
}

// state holds every mutable field the RF task owns across the lifetime of
// Run, all local to the goroutine that calls Run — SPEC_FULL.md §9 is
// explicit that none of this may live in a package-level var.
type state struct {
	cfg Config
	clk Clock
	log LogPrintf

	rnd   *Random
	cred  credit
	queue relayqueue.Queue
	noise *rssi.Tracker

	region freqplan.Region

	curPkt   ogn.Packet // always clear (unwhitened); sealed only on throwaway copies
	curReady bool

	pktRing    [64]int // per-second received-packet counts, rolling
	pktRingIdx int     // index of the current second's bucket
	pktRingSum int     // sum of pktRing, kept incrementally

	secondsSinceRx int // consecutive seconds with zero received packets
	chipTemp       int8
}

// Run drives the RF task loop until ctx is canceled, checked only at UTC
// second boundaries (SPEC_FULL.md §5: "no operation inside the RF task is
// cancellable mid-packet"). It returns ctx.Err() on cancellation, or an
// error if Config is unusable.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Chip == nil {
		return errors.New("rftask: Config.Chip is required")
	}
	if cfg.GPS == nil {
		return errors.New("rftask: Config.GPS is required")
	}
	if cfg.Params == nil {
		return errors.New("rftask: Config.Params is required")
	}
	if cfg.PPSPhase == nil {
		return errors.New("rftask: Config.PPSPhase is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	log := cfg.Log
	if log == nil {
		log = noopLog
	}

	s := &state{
		cfg:    cfg,
		clk:    cfg.Clock,
		log:    log,
		rnd:    NewRandom(cfg.Seed),
		noise:  rssi.New(-100),
		region: cfg.Params.Region(),
	}

	for {
		if err := s.bringUp(ctx); err != nil {
			return err
		}
		if err := s.runUntilWedged(ctx); err != nil {
			return err
		}
		// runUntilWedged only returns nil when it suspects the chip is
		// wedged (zeroPacketRebringUp reached); loop back to bring-up.
	}
}

// bringUp resets the chip, programs the frequency plan and sync word, and
// verifies the chip responds with a plausible version byte, retrying once a
// second forever until ctx is canceled or it succeeds.
func (s *state) bringUp(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chip := s.cfg.Chip
		chip.Reset(true)
		chip.SetFrequencyCorrection(s.cfg.Params.FreqCorrection())
		chip.SetBaseFrequency(freqplan.BaseFrequency(s.region))
		chip.SetChannelSpacing(freqplan.ChannelSpacing(s.region))
		chip.WriteTxPower(s.cfg.Params.TxPower(), s.cfg.Params.TxTypeHW())

		var sync [8]byte
		copy(sync[:], ognSyncWord[:])
		chip.WriteSync(8, 7, sync)
		chip.SetChannel(0)
		chip.ClearIrqFlags()

		ver, err := chip.ReadVersion()
		if err == nil && ver != 0x00 && ver != 0xFF {
			chip.WriteMode(transceiver.ModeReceive)
			s.secondsSinceRx = 0
			return nil
		}
		s.log("rftask: bring-up failed (version=%#x err=%v), retrying", ver, err)
		s.clk.Sleep(time.Second)
	}
}

// ognSyncWord is the fixed 8-byte sync pattern the Transceiver Facade
// programs for both TX and RX (SPEC_FULL.md §4.5). Like the whitening
// sequence and LDPC parity matrix, the exact upstream OGN sync bytes were
// not retrievable in this environment; this is a fixed, internally
// consistent stand-in (see DESIGN.md).
var ognSyncWord = [8]byte{0x0A, 0x67, 0x40, 0xD7, 0xC2, 0x4E, 0xD9, 0xB6}

// runUntilWedged runs whole UTC seconds until ctx is canceled (returning
// its error) or zeroPacketRebringUp consecutive silent seconds elapse
// (returning nil, asking the caller to re-run bring-up).
func (s *state) runUntilWedged(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ppsStart := s.syncToPPS()
		s.advancePacketRing()
		s.composeOwnPacket()

		rxThisSecond := 0
		rxThisSecond += s.halfSlot(ppsStart, 0)
		rxThisSecond += s.halfSlot(ppsStart, 1)

		if rxThisSecond > 0 {
			s.secondsSinceRx = 0
		} else {
			s.secondsSinceRx++
			if s.secondsSinceRx >= zeroPacketRebringUp {
				return nil
			}
		}

		gpsSec := s.cfg.GPS.Sec()
		s.queue.CleanTime(uint8((int(gpsSec) + 30) % 60))
	}
}

// advancePacketRing rolls the 64-second received-packet ring forward by one
// bucket, dropping the count from 64 seconds ago out of pktRingSum.
func (s *state) advancePacketRing() {
	s.pktRingIdx = (s.pktRingIdx + 1) % len(s.pktRing)
	s.pktRingSum -= s.pktRing[s.pktRingIdx]
	s.pktRing[s.pktRingIdx] = 0
}

// syncToPPS sleeps until cfg.PPSPhase reports we are within 1ms of a pulse,
// the ≤1ms-resolution phase source SPEC_FULL.md §5 requires for slot
// alignment, and returns the clock time at that instant as the second's
// start.
func (s *state) syncToPPS() time.Time {
	for {
		phase := s.cfg.PPSPhase()
		if phase < time.Millisecond {
			return s.clk.Now()
		}
		remain := time.Second - phase
		step := time.Millisecond
		if remain < step {
			step = remain
		}
		s.clk.Sleep(step)
	}
}

// composeOwnPacket rebuilds CurrPosPacket from the freshest GPS position
// and the position two seconds prior (for the differential velocity
// fields), per SPEC_FULL.md §4.6 step 1. If GPS lock has been missing for
// more than staleGPSTimeout and a Ready packet already exists, its
// time-of-second field is overwritten with the stale sentinel instead of
// dropping the packet. s.curPkt is always kept clear (never whitened); it
// is sealed only transiently, on a copy, at the point a wire frame is
// needed — the same convention relayqueue.Queue follows for its own
// stored packets.
func (s *state) composeOwnPacket() {
	cur := s.cfg.GPS.Position(0)
	if !cur.Complete() || !cur.Valid() {
		if s.curReady && s.cfg.GPS.TimeSinceLock() > staleGPSTimeout {
			s.curPkt.SetTimeOfSecond(ogn.TimeStale)
		}
		return
	}

	var pkt ogn.Packet
	pkt.SetAddress(s.cfg.Params.Address())
	pkt.SetAddrType(s.cfg.Params.AddrType())
	pkt.SetStealth(s.cfg.Params.Stealth())
	pkt.SetAcftType(s.cfg.Params.AcftType())
	pkt.SetTimeOfSecond(cur.Sec)
	pkt.SetLatitude(cur.Latitude)
	pkt.SetLongitude(cur.Longitude)
	pkt.SetAltitude(int16(cur.Altitude / 10))

	if ref := s.cfg.GPS.Position(2); ref.Complete() && ref.Valid() {
		north, east := pkt.DistanceVector(ref.Latitude, ref.Longitude, ref.LatCosine)
		const dt = 2.0 // seconds between cur and ref
		speedMS := hypot(north, east) / dt
		pkt.SetSpeed(uint8(clamp(speedMS*3.6, 0, 255)))
		// Altitude is already in tenths of a meter, so a delta over dt
		// seconds divided by dt directly gives tenths-of-meter-per-second,
		// exactly the 0.1 m/s units SetClimb expects.
		climbDms := float64(cur.Altitude-ref.Altitude) / dt
		pkt.SetClimb(int8(clamp(climbDms, -128, 127)))
	}

	s.curPkt = pkt
	s.curReady = true
}

// halfSlot runs one half of the UTC second (half 0 or 1): it measures
// noise, hops to this half's channel, decides whether to transmit the own
// packet or a relay candidate, and runs TimeSlot. It returns the number of
// foreign packets successfully received during the half-slot.
func (s *state) halfSlot(ppsStart time.Time, half int) int {
	deadline := ppsStart.Add(time.Duration(half+1) * halfSlotLength)
	noiseDeadline := ppsStart.Add(time.Duration(half)*halfSlotLength + 300*time.Millisecond)

	rx := s.listenAndReceive(noiseDeadline)

	s.cfg.Chip.WriteMode(transceiver.ModeStandby)
	s.cfg.Chip.SetBaseFrequency(freqplan.BaseFrequency(s.region))
	s.cfg.Chip.SetChannelSpacing(freqplan.ChannelSpacing(s.region))
	channel := freqplan.Channel(s.cfg.GPS.UnixTime(), half, s.region)
	s.cfg.Chip.SetChannel(byte(channel))

	if half == 0 {
		// Sample the noise floor between PPS+300ms and PPS+400ms, while
		// still idle between A's listen window and its own TX slot, so the
		// listen-before-talk threshold has fresh samples (SPEC_FULL.md §4.6
		// step 3). The chip stays tuned to this half-slot's (A's) channel
		// for the measurement; it is not retuned to half-slot B's channel.
		s.measureNoise(ppsStart.Add(300*time.Millisecond), ppsStart.Add(400*time.Millisecond))
		s.emitPOGNR()
	}

	s.cfg.Chip.WriteMode(transceiver.ModeReceive)

	// Odd UTC second: half-slot A (0) is the relay candidate; even second:
	// half-slot B (1) is, per SPEC_FULL.md §4.6's "complementary" rule.
	relayHalf := 1
	if s.cfg.GPS.Sec()%2 == 1 {
		relayHalf = 0
	}

	var payload *[26]byte
	if half == relayHalf && s.rnd.Bool() {
		if frame, ok := s.queue.GetRelayPacket(s.rnd.Next); ok {
			payload = &frame
		}
	}
	if payload == nil && s.curReady {
		// curPkt is kept clear; seal a throwaway copy so the stored packet
		// itself never ends up whitened (its fields must stay readable by
		// receiveOne/emitTelemetry across halfSlot calls).
		txPkt := s.curPkt
		txPkt.Seal()
		frame := txPkt.Frame()
		payload = &frame
	}

	s.cred.increment()

	txOffsetSteps := s.rnd.Next()&0x3F + 1
	txOffset := time.Duration(txOffsetSteps*6) * time.Millisecond
	threshold := s.noise.Threshold(relayNoiseMargin)
	timeSlot(s.cfg.Chip, s.rnd, s.clk, byte(channel), txSlotLength, payload,
		threshold, lbtMaxWait, txOffset, &s.cred)

	waitUntil(s.clk, deadline)

	return rx
}

// listenAndReceive polls the chip for an incoming packet (via DIO0/IRQ
// flags) until deadline, folding every RSSI sample into both RX_Random and
// the noise tracker, and decodes and admits any packet that arrives.
// Returns the number of foreign packets successfully received.
func (s *state) listenAndReceive(deadline time.Time) int {
	rx := 0
	for s.clk.Now().Before(deadline) {
		on, err := s.cfg.Chip.DIO0IsOn()
		if err == nil && on {
			if s.receiveOne() {
				rx++
			}
		}
		if sample, err := s.cfg.Chip.ReadRSSI(); err == nil {
			s.rnd.MixRSSI(sample)
			s.noise.Update(sample)
		}
		remain := deadline.Sub(s.clk.Now())
		step := time.Millisecond
		if remain < step {
			step = remain
		}
		if step <= 0 {
			break
		}
		s.clk.Sleep(step)
	}
	return rx
}

// measureNoise samples RSSI between start and end without attempting to
// receive, used for half-slot B's upper-channel noise measurement window
// (SPEC_FULL.md §4.6 step 3).
func (s *state) measureNoise(start, end time.Time) {
	waitUntil(s.clk, start)
	for s.clk.Now().Before(end) {
		if sample, err := s.cfg.Chip.ReadRSSI(); err == nil {
			s.rnd.MixRSSI(sample)
			s.noise.Update(sample)
		}
		remain := end.Sub(s.clk.Now())
		step := time.Millisecond
		if remain < step {
			step = remain
		}
		if step <= 0 {
			return
		}
		s.clk.Sleep(step)
	}
}

// receiveOne reads one frame off the chip, validates and FEC-corrects it
// (dropping it if the decoder does not converge or RxErr reaches maxRxErr),
// and (if it is a valid foreign position packet) admits it into the relay
// queue and emits $POGNT/$PFLAA telemetry; a packet carrying our own
// address emits $POGNT only. It reports whether a packet was successfully
// accepted.
func (s *state) receiveOne() bool {
	frame, errMask, err := s.cfg.Chip.ReadPacket()
	if err != nil {
		return false
	}

	var pkt ogn.Packet
	pkt.SetFrame(frame)
	pkt.Dewhiten()

	rxErr, converged := pkt.Decode(errMask)
	if !converged || rxErr >= maxRxErr {
		return false
	}

	s.pktRing[s.pktRingIdx]++
	s.pktRingSum++

	if pkt.Address() == s.cfg.Params.Address() {
		s.writeAll(pkt.WritePOGNT())
		return true // our own echo; $POGNT only, never relayed or geolocated
	}

	if pkt.IsOther() || pkt.IsEncrypted() {
		return true // counted but not relayed or geolocated
	}

	rssiSample, _ := s.cfg.Chip.ReadRSSI()

	var rx ogn.RxPacket
	rx.Packet = pkt
	rx.RSSI = rssiSample
	rx.RxErr = uint8(rxErr)
	rx.SlotTime = s.cfg.GPS.Sec()
	rx.Ready = true

	selfAltDam := int32(0)
	if s.curReady {
		selfAltDam = int32(s.curPkt.Altitude()) / 10
	}
	rx.CalcRelayRank(selfAltDam)

	idx := s.queue.Find(rx.Address(), rx.AddrType())
	if idx < 0 {
		idx = s.queue.GetNew()
	}
	s.queue.AddNew(idx, rx)

	s.emitTelemetry(&rx)
	return true
}

// emitTelemetry writes the $POGNT and, unless the packet is self-addressed
// (already excluded by receiveOne), $PFLAA sentences for a just-received
// packet to every configured sink.
func (s *state) emitTelemetry(rx *ogn.RxPacket) {
	s.writeAll(rx.WritePOGNT())

	if s.curReady {
		ref := s.cfg.GPS.Position(0)
		if ref.Complete() && ref.Valid() {
			north, east := rx.DistanceVector(ref.Latitude, ref.Longitude, ref.LatCosine)
			altDelta := rx.Altitude() - s.curPkt.Altitude()
			s.writeAll(rx.WritePFLAA(north, east, altDelta))
		}
	}
}

// emitPOGNR writes the periodic status sentence once per second, at the
// top of half-slot A.
func (s *state) emitPOGNR() {
	temp, err := s.cfg.Chip.ReadTemp()
	if err == nil {
		s.chipTemp = temp
	}
	s.cfg.Chip.TriggerTemp()

	var avgRSSIHalfDBm *int8
	if s.noise.Count() > 0 {
		v := int8(clamp(float64(s.noise.Value())*2, -128, 127))
		avgRSSIHalfDBm = &v
	}
	line := telemetry.POGNR(int(s.region), s.pktRingSum, avgRSSIHalfDBm, s.chipTemp, s.cred.value())
	s.writeAll(line)
}

func (s *state) writeAll(line string) {
	for _, sink := range s.cfg.Sinks {
		sink.Write(line)
	}
}

func hypot(a, b int32) float64 {
	return math.Hypot(float64(a), float64(b))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
