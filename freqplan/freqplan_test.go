// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package freqplan

import "testing"

func Test_ChannelDeterministic(t *testing.T) {
	cases := map[string]struct {
		t      int64
		half   int
		region Region
	}{
		"eu-a":  {1700000000, 0, RegionEuropeAfrica},
		"eu-b":  {1700000000, 1, RegionEuropeAfrica},
		"us-a":  {1700000001, 0, RegionAmericas},
		"au-b":  {1700000002, 1, RegionAustraliaSouthAmerica},
	}
	for n, tc := range cases {
		got1 := Channel(tc.t, tc.half, tc.region)
		got2 := Channel(tc.t, tc.half, tc.region)
		if got1 != got2 {
			t.Fatalf("%s: Channel not deterministic, got %d then %d", n, got1, got2)
		}
		if got1 < 0 || got1 >= ChannelCount(tc.region) {
			t.Fatalf("%s: channel %d out of range [0,%d)", n, got1, ChannelCount(tc.region))
		}
	}
}

func Test_HalfSlotsDiffer(t *testing.T) {
	for region, p := range plans {
		if p.channels < 2 {
			continue
		}
		for sec := int64(1700000000); sec < 1700000000+200; sec++ {
			a := Channel(sec, 0, region)
			b := Channel(sec, 1, region)
			if a == b {
				t.Fatalf("region %d sec %d: half-slots picked same channel %d", region, sec, a)
			}
		}
	}
}

func Test_RegionFor(t *testing.T) {
	cases := map[string]struct {
		lat, lon float64
		want     Region
	}{
		"europe":    {48.8, 2.3, RegionEuropeAfrica},
		"americas":  {39.0, -95.0, RegionAmericas},
		"australia": {-33.9, 151.2, RegionAustraliaSouthAmerica},
	}
	for n, tc := range cases {
		if got := RegionFor(tc.lat, tc.lon); got != tc.want {
			t.Errorf("%s: RegionFor(%v,%v) = %v, want %v", n, tc.lat, tc.lon, got, tc.want)
		}
	}
}
