// Package ntptime converts NTP wire time formats to and from Go time values.
//
// An NTP timestamp only carries 32 bits of seconds, so the same value recurs
// every 136 years (the first rollover is in February 2036). ToTime resolves
// the era against a pivot time supplied by the caller instead of assuming the
// first era.
package ntptime

import (
	"math"
	"time"

	"firestige.xyz/ntpwire/pkg/ntp"
)

const (
	EraLength     int64 = 1 << 32       // seconds per NTP era
	UnixEraOffset int64 = 2_208_988_800 // seconds from 1900-01-01 to 1970-01-01
	ShortLength   int64 = 1 << 16       // units per second in the short format
)

// Epoch is the start of NTP era 0.
var Epoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ToTime converts ts to the instant closest to pivot that has the same
// 32-bit seconds value. The result is in UTC.
func ToTime(ts ntp.Timestamp, pivot time.Time) time.Time {
	pivotSec := pivot.Unix() + UnixEraOffset
	era := floorDiv(pivotSec, EraLength)
	sec := era*EraLength + int64(ts.Seconds)

	switch d := sec - pivotSec; {
	case d > EraLength/2:
		sec -= EraLength
	case d < -EraLength/2:
		sec += EraLength
	}

	nsec := (int64(ts.Fraction)*int64(time.Second) + 1<<31) >> 32
	return time.Unix(sec-UnixEraOffset, nsec).UTC()
}

// Era returns the NTP era containing t. Era 0 began in 1900, era 1 begins
// 2036-02-07T06:28:16Z.
func Era(t time.Time) int64 {
	return floorDiv(t.Unix()+UnixEraOffset, EraLength)
}

// FromTime converts t to an NTP timestamp, dropping the era.
func FromTime(t time.Time) ntp.Timestamp {
	sec := t.Unix() + UnixEraOffset
	frac := (uint64(t.Nanosecond())<<32 + uint64(time.Second)/2) / uint64(time.Second)
	return ntp.Timestamp{Seconds: uint32(sec), Fraction: uint32(frac)}
}

// ShortToDuration converts a 16.16 short value to a duration, rounded to the
// nearest nanosecond.
func ShortToDuration(s ntp.Short) time.Duration {
	return time.Duration((int64(s)*int64(time.Second) + ShortLength/2) / ShortLength)
}

// ShortFromDuration converts d to the short format, clamping to the
// representable range [0, 65536s).
func ShortFromDuration(d time.Duration) ntp.Short {
	if d <= 0 {
		return 0
	}
	if d >= time.Duration(ShortLength)*time.Second {
		return ntp.Short(math.MaxUint32)
	}
	v := (int64(d)*ShortLength + int64(time.Second)/2) / int64(time.Second)
	if v > math.MaxUint32 {
		return ntp.Short(math.MaxUint32)
	}
	return ntp.Short(v)
}

// Log2ToSeconds converts a poll or precision exponent to seconds.
func Log2ToSeconds(exp int8) float64 {
	return math.Ldexp(1, int(exp))
}

// SecondsToLog2 returns the exponent of the smallest power of two not below
// sec, clamped to the int8 range. Non-positive input gives the minimum.
func SecondsToLog2(sec float64) int8 {
	if sec <= 0 {
		return math.MinInt8
	}
	exp := math.Ceil(math.Log2(sec))
	switch {
	case exp < math.MinInt8:
		return math.MinInt8
	case exp > math.MaxInt8:
		return math.MaxInt8
	}
	return int8(exp)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
