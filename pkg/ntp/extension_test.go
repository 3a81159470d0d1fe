package ntp

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
)

func TestExtensionScannerSingleField(t *testing.T) {
	data := concat([]byte{0x01, 0x04, 0x00, 0x1C}, make([]byte, 24))

	s := NewExtensionScanner(data)
	ext, ok := s.Next()
	if !ok {
		t.Fatalf("Next returned false, err %v", s.Err())
	}
	if ext.Type != 0x0104 {
		t.Errorf("Expected type 0x0104, got 0x%04x", ext.Type)
	}
	if ext.Length != 28 {
		t.Errorf("Expected length 28, got %d", ext.Length)
	}
	if len(ext.Payload) != 24 {
		t.Errorf("Expected payload length 24, got %d", len(ext.Payload))
	}

	if _, ok := s.Next(); ok {
		t.Error("Expected scan to end after one field")
	}
	if len(s.Rest()) != 0 {
		t.Errorf("Expected empty rest, got %d bytes", len(s.Rest()))
	}
	if s.Err() != nil {
		t.Errorf("Expected no length error, got %v", s.Err())
	}
}

func TestExtensionScannerStopsOnBadLength(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		fields int
		rest   int
		badLen bool
	}{
		{"empty", nil, 0, 0, false},
		{"three bytes", []byte{1, 2, 3}, 0, 3, false},
		{"length zero", []byte{0, 0, 0, 0, 9, 9, 9, 9}, 0, 8, true},
		{"length three", []byte{0, 0, 0, 3, 9, 9, 9, 9}, 0, 8, true},
		{"length not multiple of four", concat([]byte{0, 1, 0, 6}, make([]byte, 8)), 0, 12, true},
		{"length past end", concat([]byte{0, 1, 0, 16}, make([]byte, 8)), 0, 12, true},
		{"header only field", []byte{0, 1, 0, 4}, 1, 0, false},
		{"field then mac", concat([]byte{0, 1, 0, 8, 1, 2, 3, 4}, []byte{0, 0, 0, 1}, make([]byte, 16)), 1, 20, true},
		{"field then short tail", concat([]byte{0, 1, 0, 8, 1, 2, 3, 4}, []byte{7, 7}), 1, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewExtensionScanner(tt.data)
			n := 0
			for {
				if _, ok := s.Next(); !ok {
					break
				}
				n++
			}
			if n != tt.fields {
				t.Errorf("Expected %d fields, got %d", tt.fields, n)
			}
			if len(s.Rest()) != tt.rest {
				t.Errorf("Expected %d rest bytes, got %d", tt.rest, len(s.Rest()))
			}
			if got := errors.Is(s.Err(), ErrInvalidExtensionLength); got != tt.badLen {
				t.Errorf("length error = %v, want %v (err %v)", got, tt.badLen, s.Err())
			}
			// rest always starts where the last good field ended, so the
			// peeked header of a bad field stays with the MAC bytes
			if !bytes.HasSuffix(tt.data, s.Rest()) {
				t.Error("rest is not a suffix of the input")
			}
		})
	}
}

func TestExtensionScannerStepBound(t *testing.T) {
	minimal := bytes.Repeat([]byte{0x00, 0x01, 0x00, 0x04}, 64)
	rng := rand.New(rand.NewPCG(5, 6))

	inputs := [][]byte{
		nil,
		make([]byte, 256),
		bytes.Repeat([]byte{0xFF}, 257),
		minimal,
	}
	for range 500 {
		b := make([]byte, rng.IntN(300))
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		// bias towards plausible lengths so the loop runs more than once
		for i := 2; i+1 < len(b); i += 8 {
			b[i], b[i+1] = 0, byte(4*rng.IntN(3)+4)
		}
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		s := NewExtensionScanner(in)
		for {
			if _, ok := s.Next(); !ok {
				break
			}
		}
		if s.steps > len(in)/4 {
			t.Fatalf("%d steps over %d bytes", s.steps, len(in))
		}
	}

	s := NewExtensionScanner(minimal)
	for {
		if _, ok := s.Next(); !ok {
			break
		}
	}
	if s.steps != len(minimal)/4 {
		t.Errorf("minimal fields: %d steps, want %d", s.steps, len(minimal)/4)
	}
}

func TestExtensionScannerReset(t *testing.T) {
	data := concat([]byte{0, 1, 0, 8, 1, 2, 3, 4}, []byte{0, 2, 0, 4})
	s := NewExtensionScanner(data)

	var first []uint16
	for ext, ok := s.Next(); ok; ext, ok = s.Next() {
		first = append(first, ext.Type)
	}
	s.Reset()
	var second []uint16
	for ext, ok := s.Next(); ok; ext, ok = s.Next() {
		second = append(second, ext.Type)
	}

	if len(first) != 2 || len(second) != 2 || first[0] != second[0] || first[1] != second[1] {
		t.Errorf("scan after Reset differs: %v vs %v", first, second)
	}
}

func TestExtensionFieldsIterator(t *testing.T) {
	data := concat([]byte{0, 1, 0, 8, 1, 2, 3, 4}, []byte{0, 2, 0, 4}, []byte{0, 0, 0, 0})

	var types []uint16
	for ext := range ExtensionFields(data) {
		types = append(types, ext.Type)
	}
	if len(types) != 2 || types[0] != 1 || types[1] != 2 {
		t.Errorf("Expected types [1 2], got %v", types)
	}

	// early break must not panic
	for range ExtensionFields(data) {
		break
	}
}

func TestCheckExtensionLength(t *testing.T) {
	tests := []struct {
		length    uint16
		remaining int
		ok        bool
	}{
		{4, 4, true},
		{8, 100, true},
		{65532, 65532, true},
		{0, 100, false},
		{2, 100, false},
		{5, 100, false},
		{10, 100, false},
		{12, 8, false},
	}
	for _, tt := range tests {
		err := checkExtensionLength(tt.length, tt.remaining)
		if (err == nil) != tt.ok {
			t.Errorf("checkExtensionLength(%d, %d) = %v", tt.length, tt.remaining, err)
		}
	}
}
