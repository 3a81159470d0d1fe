package ntp

import (
	"fmt"
	"math/big"
)

// LeapIndicator warns of an impending leap second to be inserted or deleted
// in the last minute of the current day. It occupies the top two bits of the
// first header byte.
type LeapIndicator uint8

const (
	LeapNoWarning      LeapIndicator = 0
	LeapInsertSecond   LeapIndicator = 1 // last minute has 61 seconds
	LeapDeleteSecond   LeapIndicator = 2 // last minute has 59 seconds
	LeapUnsynchronized LeapIndicator = 3 // clock not synchronized
)

var leapNames = [...]string{
	LeapNoWarning:      "no-warning",
	LeapInsertSecond:   "insert-second",
	LeapDeleteSecond:   "delete-second",
	LeapUnsynchronized: "unsynchronized",
}

// Known reports whether l fits the two bits the wire format reserves for it.
func (l LeapIndicator) Known() bool { return l <= LeapUnsynchronized }

func (l LeapIndicator) String() string {
	if l.Known() {
		return leapNames[l]
	}
	return fmt.Sprintf("unknown(%d)", uint8(l))
}

// Mode is the association mode carried in the low three bits of the first
// header byte. It is kept as the raw value so that a mode this package has no
// name for still survives a decode/encode cycle unchanged.
type Mode uint8

const (
	ModeReserved         Mode = 0
	ModeSymmetricActive  Mode = 1
	ModeSymmetricPassive Mode = 2
	ModeClient           Mode = 3
	ModeServer           Mode = 4
	ModeBroadcast        Mode = 5
	ModeControl          Mode = 6 // NTP control message (mode 6)
	ModePrivate          Mode = 7 // reserved for private use
)

var modeNames = [...]string{
	ModeReserved:         "reserved",
	ModeSymmetricActive:  "symmetric-active",
	ModeSymmetricPassive: "symmetric-passive",
	ModeClient:           "client",
	ModeServer:           "server",
	ModeBroadcast:        "broadcast",
	ModeControl:          "control",
	ModePrivate:          "private",
}

// Known reports whether m fits in three bits.
func (m Mode) Known() bool { return m <= ModePrivate }

func (m Mode) String() string {
	if m.Known() {
		return modeNames[m]
	}
	return fmt.Sprintf("unknown(%d)", uint8(m))
}

// Short is the NTP short format used for root delay and root dispersion:
// an unsigned 16.16 fixed-point number of seconds.
type Short uint32

// NewShort builds a Short from its integer and fractional halves.
func NewShort(integer, fraction uint16) Short {
	return Short(uint32(integer)<<16 | uint32(fraction))
}

// Integer returns the whole seconds.
func (s Short) Integer() uint16 { return uint16(s >> 16) }

// Fraction returns the fractional seconds in units of 2^-16 s.
func (s Short) Fraction() uint16 { return uint16(s) }

// Rat returns the exact value in seconds.
func (s Short) Rat() *big.Rat { return big.NewRat(int64(s), 1<<16) }

// Timestamp is the 64-bit NTP timestamp format: seconds since the NTP epoch
// (1900-01-01T00:00:00Z) and a 32-bit binary fraction. The seconds field wraps
// every 2^32 seconds; resolving which era a value belongs to is left to the
// caller (see package ntptime).
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// TimestampFromUint64 splits the on-wire 64-bit representation.
func TimestampFromUint64(v uint64) Timestamp {
	return Timestamp{Seconds: uint32(v >> 32), Fraction: uint32(v)}
}

// Uint64 returns the on-wire 64-bit representation.
func (t Timestamp) Uint64() uint64 {
	return uint64(t.Seconds)<<32 | uint64(t.Fraction)
}

// IsZero reports whether t is the zero timestamp, which NTP uses to mean
// "unknown" or "not set".
func (t Timestamp) IsZero() bool { return t.Seconds == 0 && t.Fraction == 0 }

// String formats t the way ntpq prints raw timestamps.
func (t Timestamp) String() string {
	return fmt.Sprintf("%08x.%08x", t.Seconds, t.Fraction)
}
