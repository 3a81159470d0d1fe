package ntp

import (
	"encoding/binary"
	"fmt"
	"iter"
)

const extensionHeaderLen = 4

// ExtensionScanner walks the extension fields at the start of the bytes that
// follow an NTPv4 header.
//
// Scanning stops at the first position where a well-formed field does not
// fit: fewer than 4 bytes left, or a declared length below 4, not a multiple
// of 4, or past the end of the data. Everything from that position on is left
// in Rest for the MAC decoder. A short MAC and a malformed extension look the
// same on the wire, so stopping is the recovery, not a failure.
//
// Each step consumes at least 4 bytes, so a scan takes at most len(data)/4
// steps. The scanner never modifies data; Reset starts it over.
type ExtensionScanner struct {
	data  []byte
	off   int
	done  bool
	err   error
	steps int
}

// NewExtensionScanner returns a scanner over data.
func NewExtensionScanner(data []byte) *ExtensionScanner {
	return &ExtensionScanner{data: data}
}

// Next decodes the next extension field. It returns false once no further
// field fits.
func (s *ExtensionScanner) Next() (ExtensionField, bool) {
	if s.done {
		return ExtensionField{}, false
	}

	rem := s.data[s.off:]
	if len(rem) < extensionHeaderLen {
		s.done = true
		return ExtensionField{}, false
	}
	s.steps++

	// Field Type (2 bytes), Length (2 bytes)
	r := reader{b: rem}
	fieldType := r.u16("extension_type")
	length := r.u16("extension_length")
	if err := checkExtensionLength(length, len(rem)); err != nil {
		s.err = fmt.Errorf("extension at offset %d: %w", s.off, err)
		s.done = true
		return ExtensionField{}, false
	}

	payload := r.take(int(length)-extensionHeaderLen, "extension_payload")
	if r.err != nil {
		s.err = r.err
		s.done = true
		return ExtensionField{}, false
	}
	s.off += int(length)

	return ExtensionField{Type: fieldType, Length: length, Payload: payload}, true
}

// Rest returns the bytes not consumed as extension fields.
func (s *ExtensionScanner) Rest() []byte { return s.data[s.off:] }

// Err returns the length violation that ended the scan, if any. It is
// informational: the bytes it refers to are still in Rest.
func (s *ExtensionScanner) Err() error { return s.err }

// Reset rewinds the scanner to the start of its data.
func (s *ExtensionScanner) Reset() {
	s.off = 0
	s.done = false
	s.err = nil
	s.steps = 0
}

// ExtensionFields returns an iterator over the extension fields at the start
// of data, with the same stopping rules as ExtensionScanner.
func ExtensionFields(data []byte) iter.Seq[ExtensionField] {
	return func(yield func(ExtensionField) bool) {
		s := NewExtensionScanner(data)
		for {
			ext, ok := s.Next()
			if !ok || !yield(ext) {
				return
			}
		}
	}
}

// checkExtensionLength validates a declared length against the bytes left.
func checkExtensionLength(length uint16, remaining int) error {
	switch {
	case length < extensionHeaderLen:
		return fmt.Errorf("length %d below minimum %d: %w", length, extensionHeaderLen, ErrInvalidExtensionLength)
	case length%4 != 0:
		return fmt.Errorf("length %d not a multiple of 4: %w", length, ErrInvalidExtensionLength)
	case int(length) > remaining:
		return fmt.Errorf("length %d exceeds %d remaining bytes: %w", length, remaining, ErrInvalidExtensionLength)
	}
	return nil
}

func appendExtension(b []byte, ext ExtensionField) []byte {
	b = binary.BigEndian.AppendUint16(b, ext.Type)
	b = binary.BigEndian.AppendUint16(b, ext.Length)
	return append(b, ext.Payload...)
}
