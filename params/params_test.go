// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package params

import (
	"testing"

	"github.com/kedder/diy-tracker/freqplan"
)

func Test_StaticImplementsStore(t *testing.T) {
	s := Static{
		AddressVal:        0x123456,
		AddrTypeVal:       1,
		TxPowerVal:        14,
		TxTypeHWVal:       true,
		StealthVal:        false,
		AcftTypeVal:       9,
		FreqCorrectionVal: -120,
		RegionVal:         freqplan.RegionEuropeAfrica,
	}
	var store Store = s
	if store.Address() != 0x123456 {
		t.Fatalf("Address() = %#x, want 0x123456", store.Address())
	}
	if store.AddrType() != 1 {
		t.Fatalf("AddrType() = %d, want 1", store.AddrType())
	}
	if store.TxPower() != 14 {
		t.Fatalf("TxPower() = %d, want 14", store.TxPower())
	}
	if !store.TxTypeHW() {
		t.Fatalf("TxTypeHW() = false, want true")
	}
	if store.Stealth() {
		t.Fatalf("Stealth() = true, want false")
	}
	if store.AcftType() != 9 {
		t.Fatalf("AcftType() = %d, want 9", store.AcftType())
	}
	if store.FreqCorrection() != -120 {
		t.Fatalf("FreqCorrection() = %d, want -120", store.FreqCorrection())
	}
	if store.Region() != freqplan.RegionEuropeAfrica {
		t.Fatalf("Region() = %v, want RegionEuropeAfrica", store.Region())
	}
}
