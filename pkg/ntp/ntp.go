// Package ntp converts Network Time Protocol packets between wire bytes and a
// structured Packet value.
//
// A packet is the fixed 48-byte header, then, for version 4 only, zero or more
// extension fields (RFC 7822), then an optional MAC. None of the trailers
// carries an overall length, so the boundaries are worked out from the bytes
// that remain:
//
//	version 4      extension fields while one fits, then the rest is the MAC
//	other versions everything after the header is the MAC
//
// Decode and Encode are pure functions over their arguments and are safe for
// concurrent use. Decode(b) followed by Encode reproduces b exactly.
package ntp

import "fmt"

// extensionVersion is the only protocol version with extension fields.
const extensionVersion = 4

// Decode parses one NTP packet. All of data must be consumed: the header,
// any extension fields and any MAC must account for every byte.
//
// The returned packet does not reference data.
func Decode(data []byte) (*Packet, error) {
	p, _, err := DecodeWithInfo(data)
	return p, err
}

// DecodeInfo describes how DecodeWithInfo split the bytes after the header.
type DecodeInfo struct {
	// ExtensionStop is the extension length violation that ended the
	// extension scan of a version 4 packet. The bytes from that point on
	// were decoded as the MAC. It wraps ErrInvalidExtensionLength and is nil
	// when the scan simply ran out of bytes.
	ExtensionStop error
}

// Recovered reports whether an extension length violation was absorbed into
// the MAC.
func (i DecodeInfo) Recovered() bool { return i.ExtensionStop != nil }

// DecodeWithInfo is Decode that also reports how the trailer was split.
func DecodeWithInfo(data []byte) (*Packet, DecodeInfo, error) {
	var info DecodeInfo
	p, rest, err := decodeHeader(data)
	if err != nil {
		return nil, info, err
	}

	// NTPv3 and older have no extension mechanism: running the extension
	// length rules over a v3 MAC would misparse it.
	if p.Version == extensionVersion {
		s := NewExtensionScanner(rest)
		for {
			ext, ok := s.Next()
			if !ok {
				break
			}
			p.Extensions = append(p.Extensions, ext)
		}
		rest = s.Rest()
		info.ExtensionStop = s.Err()
	}

	mac, rest, err := decodeMAC(rest)
	if err != nil {
		return nil, info, err
	}
	p.MAC = mac

	if len(rest) != 0 {
		return nil, info, fmt.Errorf("%d bytes at offset %d: %w", len(rest), len(data)-len(rest), ErrTrailingData)
	}
	return &p, info, nil
}

// Encode serializes p. It fails with ErrInvalidField or
// ErrInvalidExtensionLength when a field does not fit its wire encoding.
func Encode(p *Packet) ([]byte, error) {
	return AppendEncode(make([]byte, 0, p.Len()), p)
}

// AppendEncode appends the encoding of p to dst. On error dst is returned
// unchanged.
func AppendEncode(dst []byte, p *Packet) ([]byte, error) {
	if err := p.validate(); err != nil {
		return dst, err
	}

	b := appendHeader(dst, p)
	for _, ext := range p.Extensions {
		b = appendExtension(b, ext)
	}
	if p.MAC != nil {
		b = appendMAC(b, p.MAC)
	}
	return b, nil
}

// validate checks that every field of p fits its wire encoding.
func (p *Packet) validate() error {
	if !p.Leap.Known() {
		return fmt.Errorf("leap indicator %d exceeds 2 bits: %w", p.Leap, ErrInvalidField)
	}
	if p.Version > versionMask>>versionShift {
		return fmt.Errorf("version %d exceeds 3 bits: %w", p.Version, ErrInvalidField)
	}
	if !p.Mode.Known() {
		return fmt.Errorf("mode %d exceeds 3 bits: %w", p.Mode, ErrInvalidField)
	}

	if len(p.Extensions) > 0 && p.Version != extensionVersion {
		return fmt.Errorf("extension fields require version %d, have %d: %w",
			extensionVersion, p.Version, ErrInvalidField)
	}
	for i, ext := range p.Extensions {
		if err := checkExtensionLength(ext.Length, int(ext.Length)); err != nil {
			return fmt.Errorf("extension %d: %w", i, err)
		}
		if len(ext.Payload) != int(ext.Length)-extensionHeaderLen {
			return fmt.Errorf("extension %d: payload is %d bytes, length %d requires %d: %w",
				i, len(ext.Payload), ext.Length, int(ext.Length)-extensionHeaderLen, ErrInvalidExtensionLength)
		}
	}

	// On version 4 the decoder tries a MAC as an extension field first, so a
	// key id whose low half-word is a valid length for the trailer would come
	// back as an extension.
	if m := p.MAC; m != nil && !m.Partial && p.Version == extensionVersion {
		if checkExtensionLength(uint16(m.KeyID), m.Len()) == nil {
			return fmt.Errorf("key id %#08x reads as an extension field of length %d: %w",
				m.KeyID, uint16(m.KeyID), ErrInvalidField)
		}
	}

	if m := p.MAC; m != nil && m.Partial {
		if m.KeyID != 0 {
			return fmt.Errorf("partial mac cannot carry key id %d: %w", m.KeyID, ErrInvalidField)
		}
		if len(m.Digest) == 0 || len(m.Digest) >= macKeyIDLen {
			return fmt.Errorf("partial mac must hold 1-%d bytes, has %d: %w",
				macKeyIDLen-1, len(m.Digest), ErrInvalidField)
		}
	}
	return nil
}
