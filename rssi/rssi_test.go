// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rssi

import "testing"

func Test_NewPrimesBothStages(t *testing.T) {
	tr := New(-90)
	if v := tr.Value(); v != -90 {
		t.Fatalf("Value() after New(-90) = %d, want -90", v)
	}
	if tr.Count() != 0 {
		t.Fatalf("Count() after New = %d, want 0", tr.Count())
	}
}

func Test_UpdateConvergesTowardConstantInput(t *testing.T) {
	tr := New(-100)
	for i := 0; i < 500; i++ {
		tr.Update(-60)
	}
	if v := tr.Value(); v < -62 || v > -58 {
		t.Fatalf("Value() after many -60 samples = %d, want close to -60", v)
	}
	if tr.Count() != 500 {
		t.Fatalf("Count() = %d, want 500", tr.Count())
	}
}

func Test_UpdateIsSmoothedNotInstantaneous(t *testing.T) {
	tr := New(-100)
	tr.Update(-40) // a single strong reading should not jump the estimate all the way
	// One sample moves the second stage by well under 1 dB, which Value()'s
	// whole-dBm result hides, so check the Q8 stage directly.
	if v := tr.stage2; v <= -100<<8 || v >= -40<<8 {
		t.Fatalf("stage2 after one sample = %d (Q8 dBm), want damped strictly between -100 and -40 dBm", v)
	}
}

func Test_ResetReinitializesBothStages(t *testing.T) {
	tr := New(-100)
	for i := 0; i < 50; i++ {
		tr.Update(-50)
	}
	tr.Reset(-80)
	if v := tr.Value(); v != -80 {
		t.Fatalf("Value() after Reset(-80) = %d, want -80", v)
	}
	if tr.Count() != 0 {
		t.Fatalf("Count() after Reset = %d, want 0", tr.Count())
	}
}

func Test_ThresholdAddsMargin(t *testing.T) {
	tr := New(-95)
	if th := tr.Threshold(10); th != -85 {
		t.Fatalf("Threshold(10) = %d, want -85", th)
	}
}
