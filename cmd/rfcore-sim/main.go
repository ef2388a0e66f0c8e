// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Command rfcore-sim wires the RF task core to a chosen transceiver chip
// and runs it forever, exactly as cmd/mqttradio wires sx1231/sx1276 radios
// to an MQTT bridge. Since a real GPS feed (NMEA/UBX parsing and a
// positional history ring) is out of scope for this core, this harness
// drives the task with a synthesized circular ground track instead of real
// hardware — a provisioning/bring-up program that talks to actual GPS and
// flash-stored parameters is a separate command, not part of this core.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/host"

	"github.com/kedder/diy-tracker/freqplan"
	"github.com/kedder/diy-tracker/gpsfeed"
	"github.com/kedder/diy-tracker/params"
	"github.com/kedder/diy-tracker/rftask"
	"github.com/kedder/diy-tracker/sinks"
	"github.com/kedder/diy-tracker/transceiver"
)

// Config is the top-level rfcore-sim.toml shape, grounded on
// cmd/mqttradio/main.go's Config/RadioConfig.
type Config struct {
	Debug bool
	Log   string // optional path to an append-only telemetry log file
	Radio RadioConfig
	Sim   SimConfig
	MQTT  *sinks.MQTTConfig
}

// RadioConfig names the chip family and wiring, and the read-only
// parameters the RF task otherwise gets from nonvolatile storage.
type RadioConfig struct {
	Chip     string `toml:"chip"`      // "fsk" (RFM69) or "lora" (RFM95)
	SpiBus   int    `toml:"spi_bus"`
	IntrPin  string `toml:"intr_pin"`
	ResetPin string `toml:"reset_pin"`

	Address  uint32 `toml:"address"`
	AddrType uint8  `toml:"addr_type"`
	TxPower  int8   `toml:"tx_power"`
	TxTypeHW bool   `toml:"tx_type_hw"` // PA_BOOST-style high-power variant
	Stealth  bool   `toml:"stealth"`
	AcftType uint8  `toml:"acft_type"`

	FreqCorrection int32  `toml:"freq_correction_ppb"`
	Region         string `toml:"region"` // "eu", "us", "au", or "" to derive from Sim position
	RandSeed       uint32 `toml:"rand_seed"`

	// MuxSelPin, if set, names the GPIO pin that selects between two chips
	// sharing a single SPI bus through an external 2:1 demux (a board with
	// both an RFM69 and an RFM95 wired up). When empty, SpiBus is opened
	// directly as this chip's own bus, as on a single-chip board.
	MuxSelPin string `toml:"spi_mux_sel_pin"`
}

// SimConfig parameterizes the synthesized ground track, since this harness
// has no real GPS hardware to read from.
type SimConfig struct {
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
	Altitude  float64 `toml:"altitude"` // meters
}

func main() {
	help := flag.Bool("help", false, "print usage help")
	configFile := flag.String("config", "rfcore-sim.toml", "path to config file")
	flag.Parse()

	if *help {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <path.toml>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "radio.chip must be one of: fsk (RFM69), lora (RFM95)\n")
		fmt.Fprintf(os.Stderr, "radio.region must be one of: eu, us, au, or left blank to derive from sim.latitude/longitude\n")
		os.Exit(1)
	}

	config := &Config{}
	raw, err := ioutil.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot access config file: %s\n", err)
		os.Exit(1)
	}
	if err := toml.Unmarshal(raw, config); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse config file: %s\n", err)
		os.Exit(1)
	}

	var logf func(format string, v ...interface{}) = func(string, ...interface{}) {}
	if config.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		logf = log.Printf
	}

	chip, err := buildChip(config.Radio, logf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure radio: %s\n", err)
		os.Exit(1)
	}

	region := freqplan.RegionFor(config.Sim.Latitude, config.Sim.Longitude)
	switch config.Radio.Region {
	case "":
		// derived above from the simulated position
	case "eu":
		region = freqplan.RegionEuropeAfrica
	case "us":
		region = freqplan.RegionAmericas
	case "au":
		region = freqplan.RegionAustraliaSouthAmerica
	default:
		fmt.Fprintf(os.Stderr, "Unknown region %q (want eu, us or au)\n", config.Radio.Region)
		os.Exit(1)
	}

	store := params.Static{
		AddressVal:        config.Radio.Address,
		AddrTypeVal:       config.Radio.AddrType,
		TxPowerVal:        config.Radio.TxPower,
		TxTypeHWVal:       config.Radio.TxTypeHW,
		StealthVal:        config.Radio.Stealth,
		AcftTypeVal:       config.Radio.AcftType,
		FreqCorrectionVal: config.Radio.FreqCorrection,
		RegionVal:         region,
	}

	sinkList, closeSinks, err := buildSinks(config, logf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure telemetry sinks: %s\n", err)
		os.Exit(1)
	}
	defer closeSinks()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("Shutting down")
		cancel()
	}()

	gps := newSimGPS(config.Sim.Latitude, config.Sim.Longitude, config.Sim.Altitude)
	go gps.run(ctx)

	log.Printf("Starting RF task (region=%d chip=%s)", region, config.Radio.Chip)
	err = rftask.Run(ctx, rftask.Config{
		Chip:     chip,
		GPS:      gps,
		Params:   store,
		PPSPhase: simPPSPhase,
		Sinks:    sinkList,
		Log:      logf,
		Seed:     config.Radio.RandSeed,
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "RF task exited: %s\n", err)
		os.Exit(1)
	}
}

// buildChip wires up the SPI bus and GPIO lines and returns the chip family
// named by conf.Chip, grounded on tve-devices' periph.io-based pin/bus
// wiring. Boards that multiplex both chip families onto one SPI bus through
// an external 2:1 demux set spi_mux_sel_pin, in which case the bus is opened
// through periph.io/x/periph and transceiver.NewMuxedSPI, instead of embd's
// single-chip transceiver.NewSPI.
func buildChip(conf RadioConfig, logf func(string, ...interface{})) (transceiver.Chip, error) {
	var spiBus transceiver.SPI
	if conf.MuxSelPin != "" {
		var err error
		spiBus, err = buildMuxedSPI(conf)
		if err != nil {
			return nil, err
		}
	} else {
		spiBus = transceiver.NewSPI(conf.SpiBus)
	}
	dio0 := transceiver.NewGPIO(conf.IntrPin)
	resetPin := transceiver.NewGPIO(conf.ResetPin)

	switch conf.Chip {
	case "fsk", "":
		return transceiver.NewRFM69(spiBus, dio0, resetPin, conf.TxTypeHW, logf), nil
	case "lora":
		return transceiver.NewRFM95(spiBus, dio0, resetPin, logf), nil
	default:
		return nil, fmt.Errorf("unknown chip family %q (want fsk or lora)", conf.Chip)
	}
}

// buildMuxedSPI opens the periph.io host and SPI port and returns the leg of
// the demuxed bus belonging to conf.Chip: Low selects the RFM69 (fsk) leg,
// High the RFM95 (lora) leg, matching transceiver.NewMuxedSPI's ordering.
func buildMuxedSPI(conf RadioConfig) (transceiver.SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph.io host.Init: %w", err)
	}
	selPin := gpio.ByName(conf.MuxSelPin)
	if selPin == nil {
		return nil, fmt.Errorf("cannot open GPIO pin %q for spi_mux_sel_pin", conf.MuxSelPin)
	}
	port, err := spi.New(-1, conf.SpiBus)
	if err != nil {
		return nil, fmt.Errorf("opening periph.io SPI port: %w", err)
	}
	fsk, lora := transceiver.NewMuxedSPI(port, selPin)
	if conf.Chip == "lora" {
		return lora, nil
	}
	return fsk, nil
}

// buildSinks assembles the console sink (always present), an optional
// append-only log file, and an optional MQTT sink, returning a cleanup
// func that closes whatever files this opened.
func buildSinks(config *Config, logf func(string, ...interface{})) ([]sinks.Sink, func(), error) {
	sinkList := []sinks.Sink{sinks.NewConsole(os.Stdout)}
	closers := []func(){}

	if config.Log != "" {
		f, err := os.OpenFile(config.Log, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		sinkList = append(sinkList, sinks.NewLog(f, logf))
		closers = append(closers, func() { f.Close() })
	}

	if config.MQTT != nil {
		m, err := sinks.NewMQTT(*config.MQTT, logf)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MQTT broker: %w", err)
		}
		sinkList = append(sinkList, m)
	}

	return sinkList, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// simPPSPhase stands in for a real PPS phase source (out of scope per
// SPEC_FULL.md §1): it reports how far the wall clock's system time has
// drifted past the last UTC second boundary, which is good enough phase
// resolution to exercise the RF task's slot-alignment logic without real
// PPS hardware.
func simPPSPhase() time.Duration {
	return time.Duration(time.Now().Nanosecond())
}

// simGPS synthesizes a slow circular ground track once a second instead of
// parsing real NMEA/UBX sentences, which SPEC_FULL.md §1 keeps out of this
// core's scope. It exists only so rfcore-sim can drive the RF task end to
// end without real GPS hardware, implementing gpsfeed.Source the way a
// real feed's positional history ring would.
type simGPS struct {
	mu      sync.Mutex
	history [8]gpsfeed.Position
	idx     int
	filled  int
	locked  time.Time

	baseLatDeg, baseLonDeg float64
	radiusDeg              float64
	altitudeDm             int32
	angle                  float64
	angleStep              float64 // radians advanced per second, one lap/minute
}

func newSimGPS(latDeg, lonDeg, altitudeM float64) *simGPS {
	return &simGPS{
		baseLatDeg: latDeg,
		baseLonDeg: lonDeg,
		radiusDeg:  0.01,
		altitudeDm: int32(altitudeM * 10),
		angleStep:  2 * math.Pi / 60,
		locked:     time.Now(),
	}
}

// run advances the track once a second until ctx is canceled. Called as its
// own goroutine, separate from the RF task's, per SPEC_FULL.md §5's model
// of a GPS feed goroutine communicating only through gpsfeed.Source.
func (g *simGPS) run(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			g.advance(now)
		}
	}
}

func (g *simGPS) advance(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.angle += g.angleStep
	latDeg := g.baseLatDeg + g.radiusDeg*math.Sin(g.angle)
	lonDeg := g.baseLonDeg + g.radiusDeg*math.Cos(g.angle)

	pos := gpsfeed.NewPosition()
	pos.Latitude = int32(latDeg * 600000)
	pos.Longitude = int32(lonDeg * 600000)
	pos.LatCosine = int32(math.Cos(latDeg*math.Pi/180) * 65536)
	pos.Altitude = g.altitudeDm
	pos.UnixTime = now.Unix()
	pos.Sec = uint8(now.Second())
	pos.TimeSinceLock = now.Sub(g.locked)

	g.idx = (g.idx + 1) % len(g.history)
	g.history[g.idx] = pos
	if g.filled < len(g.history) {
		g.filled++
	}
}

func (g *simGPS) Position(secOffset int) gpsfeed.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	if secOffset < 0 || secOffset >= g.filled {
		return gpsfeed.Position{}
	}
	i := (g.idx - secOffset + len(g.history)) % len(g.history)
	return g.history[i]
}

func (g *simGPS) TimeSinceLock() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.filled == 0 {
		return 0
	}
	return g.history[g.idx].TimeSinceLock
}

func (g *simGPS) UnixTime() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.filled == 0 {
		return time.Now().Unix()
	}
	return g.history[g.idx].UnixTime
}

func (g *simGPS) Sec() uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.filled == 0 {
		return uint8(time.Now().Second())
	}
	return g.history[g.idx].Sec
}

var _ gpsfeed.Source = (*simGPS)(nil)
