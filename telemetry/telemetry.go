// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package telemetry composes the NMEA-style status lines the RF task
// emits: $POGNT (received packet), $PFLAA (traffic geometry), and $POGNR
// (periodic status). All three share the same checksum convention.
package telemetry

import "fmt"

// Sentence wraps body (the sentence content, without a leading "$" or
// trailing checksum) into a complete NMEA-style line: "$" + body + "*" +
// two-digit hex checksum + CRLF. The checksum is the XOR of every byte of
// body, the same idiom used throughout OGN/FLARM-compatible telemetry.
func Sentence(body string) string {
	var checksum byte
	for i := 0; i < len(body); i++ {
		checksum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, checksum)
}

// POGNR composes the periodic status sentence: hop plan, 64-second packet
// count, average RSSI in -0.5 dBm units, chip temperature in Celsius, and
// the current TX credit. avgRSSIHalfDBm is nil until the noise tracker has
// folded in its first real sample, rendering the field blank rather than a
// misleadingly precise value derived only from the tracker's prime value.
func POGNR(plan int, packetCount64 int, avgRSSIHalfDBm *int8, chipTempC int8, txCredit uint8) string {
	rssiField := ""
	if avgRSSIHalfDBm != nil {
		rssiField = fmt.Sprintf("%d", *avgRSSIHalfDBm)
	}
	body := fmt.Sprintf("POGNR,%d,%d,,%s,%d,,%d", plan, packetCount64, rssiField, chipTempC, txCredit)
	return Sentence(body)
}
