package ntp

import "fmt"

const (
	// HeaderLen is the size of the fixed NTP header.
	HeaderLen = 48

	// First header byte: LI (bits 7-6) | VN (bits 5-3) | Mode (bits 2-0)
	leapMask     = 0xC0
	leapShift    = 6
	versionMask  = 0x38
	versionShift = 3
	modeMask     = 0x07
)

func leapOf(b byte) LeapIndicator { return LeapIndicator((b & leapMask) >> leapShift) }

func versionOf(b byte) uint8 { return (b & versionMask) >> versionShift }

func modeOf(b byte) Mode { return Mode(b & modeMask) }

func packLiVnMode(leap LeapIndicator, version uint8, mode Mode) byte {
	return byte(leap)<<leapShift&leapMask |
		version<<versionShift&versionMask |
		byte(mode)&modeMask
}

// decodeHeader decodes the fixed 48-byte header.
// Returns the packet with header fields set and the bytes that follow it.
func decodeHeader(data []byte) (Packet, []byte, error) {
	if len(data) < HeaderLen {
		return Packet{}, nil, fmt.Errorf("header: need %d bytes, have %d: %w",
			HeaderLen, len(data), ErrTruncated)
	}

	r := reader{b: data}
	p := Packet{}

	// LI / VN / Mode share byte 0
	first := r.u8("li_vn_mode")
	p.Leap = leapOf(first)
	p.Version = versionOf(first)
	p.Mode = modeOf(first)

	// Stratum, Poll, Precision (1 byte each at offsets 1-3)
	p.Stratum = r.u8("stratum")
	p.Poll = r.i8("poll")
	p.Precision = r.i8("precision")

	// Root Delay, Root Dispersion (16.16 at offsets 4 and 8)
	p.RootDelay = r.short("root_delay")
	p.RootDispersion = r.short("root_dispersion")

	// Reference ID (4 bytes at offset 12)
	copy(p.ReferenceID[:], r.take(4, "reference_id"))

	// Timestamps (8 bytes each at offsets 16, 24, 32, 40)
	p.ReferenceTime = r.timestamp("reference_timestamp")
	p.OriginTime = r.timestamp("origin_timestamp")
	p.ReceiveTime = r.timestamp("receive_timestamp")
	p.TransmitTime = r.timestamp("transmit_timestamp")

	if r.err != nil {
		return Packet{}, nil, r.err
	}
	return p, r.rest(), nil
}

func appendHeader(b []byte, p *Packet) []byte {
	b = append(b, packLiVnMode(p.Leap, p.Version, p.Mode), p.Stratum, byte(p.Poll), byte(p.Precision))
	b = appendShort(b, p.RootDelay)
	b = appendShort(b, p.RootDispersion)
	b = append(b, p.ReferenceID[:]...)
	b = appendTimestamp(b, p.ReferenceTime)
	b = appendTimestamp(b, p.OriginTime)
	b = appendTimestamp(b, p.ReceiveTime)
	return appendTimestamp(b, p.TransmitTime)
}
