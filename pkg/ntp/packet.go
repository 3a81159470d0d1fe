package ntp

// Packet is a decoded NTP packet: the fixed header plus the optional
// extension fields and MAC that may follow it.
//
// Decode builds a Packet in one step and never hands out a partially filled
// value; the byte slices it holds are private copies.
type Packet struct {
	Leap      LeapIndicator
	Version   uint8 // 0-7; only 3 and 4 are fully interpreted
	Mode      Mode
	Stratum   uint8 // 0 unspecified / kiss-o'-death, 1 primary, 2-15 secondary
	Poll      int8  // log2 seconds
	Precision int8  // log2 seconds

	RootDelay      Short
	RootDispersion Short

	// ReferenceID is kept as raw bytes. Its meaning depends on Stratum and
	// Version (kiss code, reference clock name, IPv4 address, address hash).
	ReferenceID [4]byte

	ReferenceTime Timestamp
	OriginTime    Timestamp
	ReceiveTime   Timestamp
	TransmitTime  Timestamp

	// Extensions is empty unless Version is 4 and the bytes after the header
	// start with a well-formed extension field.
	Extensions []ExtensionField

	// MAC is nil when nothing follows the header and extensions.
	MAC *MAC
}

// ExtensionField is an NTPv4 extension field (RFC 7822).
type ExtensionField struct {
	Type uint16
	// Length covers the 4-byte field header and the padded payload. It is at
	// least 4 and a multiple of 4.
	Length uint16
	// Payload holds Length-4 bytes including any zero padding.
	Payload []byte
}

// MAC is the message authentication code trailer.
type MAC struct {
	KeyID uint32
	// Digest is whatever follows the key identifier. Its length is not
	// checked against any algorithm: 16 (MD5) and 20 (SHA-1) are common.
	Digest []byte
	// Partial marks a trailer of 1 to 3 bytes, too short to hold a key
	// identifier. KeyID is then zero and Digest holds the raw bytes.
	Partial bool
}

// Len returns the number of bytes Encode produces for p.
func (p *Packet) Len() int {
	n := HeaderLen
	for _, ext := range p.Extensions {
		n += extensionHeaderLen + len(ext.Payload)
	}
	if p.MAC != nil {
		n += p.MAC.Len()
	}
	return n
}

// HasExtensions reports whether p carries at least one extension field.
func (p *Packet) HasExtensions() bool { return len(p.Extensions) > 0 }

// Len returns the encoded size of the trailer.
func (m *MAC) Len() int {
	if m.Partial {
		return len(m.Digest)
	}
	return macKeyIDLen + len(m.Digest)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Packet) MarshalBinary() ([]byte, error) { return Encode(p) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler. On error p is left
// untouched.
func (p *Packet) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}
