// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package freqplan computes the OGN-style frequency hopping plan: given a UTC
// second and a half-slot index it picks the two channels used for transmit
// and receive in that second. The plan is a pure function of its inputs and a
// region code; it carries no state of its own.
package freqplan

// Region identifies which continental frequency plan is in effect. OGN trackers
// pick this up from GPS (hemisphere + longitude), not from a config file, since
// the same physical device may cross a region boundary in flight.
type Region byte

const (
	// RegionEuropeAfrica covers 868.2-868.4MHz, 200kHz-spaced, used across
	// most of Europe and Africa.
	RegionEuropeAfrica Region = 1
	// RegionAmericas covers the 915MHz ISM band used in the Americas.
	RegionAmericas Region = 2
	// RegionAustraliaSouthAmerica covers the alternate 917.0-926.2MHz plan used
	// in Australia and (per the original firmware) also serves as the
	// fallback for South America.
	RegionAustraliaSouthAmerica Region = 3
)

type planParams struct {
	baseFreqHz uint32 // center frequency of channel 0
	spacingHz  uint32 // spacing between adjacent channels
	channels   uint32 // number of channels in the plan
}

var plans = map[Region]planParams{
	RegionEuropeAfrica:          {baseFreqHz: 868200000, spacingHz: 200000, channels: 2},
	RegionAmericas:              {baseFreqHz: 902200000, spacingHz: 400000, channels: 65},
	RegionAustraliaSouthAmerica: {baseFreqHz: 917000000, spacingHz: 400000, channels: 24},
}

// RegionFor picks a region from a GPS fix: west of the mid-Atlantic divide the
// northern hemisphere uses the Americas plan and the southern hemisphere
// (South America) the Australia/South-America plan, the antimeridian side of
// the Pacific (roughly Australia's longitudes) also uses the
// Australia/South-America plan, and everything else uses the Europe/Africa
// plan.
func RegionFor(latDeg, lonDeg float64) Region {
	switch {
	case lonDeg < -20 && lonDeg > -130 && latDeg < 0:
		return RegionAustraliaSouthAmerica
	case lonDeg < -20 && lonDeg > -130:
		return RegionAmericas
	case lonDeg >= 110 && lonDeg <= 180, lonDeg <= -130:
		return RegionAustraliaSouthAmerica
	default:
		return RegionEuropeAfrica
	}
}

// BaseFrequency returns the center frequency, in Hz, of channel 0 for region.
func BaseFrequency(region Region) uint32 { return plans[region].baseFreqHz }

// ChannelSpacing returns the channel spacing, in Hz, for region.
func ChannelSpacing(region Region) uint32 { return plans[region].spacingHz }

// ChannelCount returns the number of hop channels defined for region.
func ChannelCount(region Region) int { return int(plans[region].channels) }

// Channel returns the hop channel to use for the given UTC second and
// half-slot (0 or 1) under region. It is a pure function: the same inputs
// always produce the same output, and the two half-slots of a given second
// are guaranteed to resolve to two distinct channels whenever the plan has
// more than one channel.
func Channel(unixTime int64, half int, region Region) int {
	n := uint32(plans[region].channels)
	if n == 0 {
		return 0
	}
	a := hop(unixTime, 0) % n
	b := hop(unixTime, 1) % n
	if n > 1 && b == a {
		b = (b + 1) % n
	}
	if half == 0 {
		return int(a)
	}
	return int(b)
}

// hop is the deterministic hop-sequence generator: a small xorshift mix of the
// UTC second and the half-slot index, salted so the two halves of the same
// second diverge before the modulo in Channel.
func hop(unixTime int64, half int) uint32 {
	x := uint32(unixTime) ^ (uint32(unixTime>>32) * 0x9e3779b9)
	if half != 0 {
		x ^= 0x6c078965
	}
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return x
}
