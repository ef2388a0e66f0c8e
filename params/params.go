// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package params defines the read-only configuration the RF task consumes.
// A real implementation is backed by nonvolatile storage (modeled here only
// as a read-only interface, per SPEC_FULL.md §1's scope note); this package
// also provides a simple in-memory Store for cmd/rfcore-sim and tests.
package params

import "github.com/kedder/diy-tracker/freqplan"

// Store is the read-only parameter set the RF task needs at bring-up and on
// every packet it composes. None of it is expected to change while the RF
// task is running; a real backing store may still be mutated out-of-band
// (e.g. by a provisioning tool), in which case the next bring-up picks up
// the new values.
type Store interface {
	Address() uint32
	AddrType() uint8
	TxPower() int8
	TxTypeHW() bool // true: PA_BOOST-style high-power variant
	Stealth() bool
	AcftType() uint8
	FreqCorrection() int32 // crystal correction, ppb
	Region() freqplan.Region
}

// Static is a plain in-memory Store, for cmd/rfcore-sim's TOML-loaded
// configuration and for tests that need a fixed parameter set.
type Static struct {
	AddressVal        uint32
	AddrTypeVal       uint8
	TxPowerVal        int8
	TxTypeHWVal       bool
	StealthVal        bool
	AcftTypeVal       uint8
	FreqCorrectionVal int32
	RegionVal         freqplan.Region
}

func (s Static) Address() uint32               { return s.AddressVal }
func (s Static) AddrType() uint8               { return s.AddrTypeVal }
func (s Static) TxPower() int8                 { return s.TxPowerVal }
func (s Static) TxTypeHW() bool                { return s.TxTypeHWVal }
func (s Static) Stealth() bool                 { return s.StealthVal }
func (s Static) AcftType() uint8               { return s.AcftTypeVal }
func (s Static) FreqCorrection() int32         { return s.FreqCorrectionVal }
func (s Static) Region() freqplan.Region       { return s.RegionVal }

var _ Store = Static{}
