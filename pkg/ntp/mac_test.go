package ntp

import (
	"bytes"
	"testing"
)

func TestDecodeMAC(t *testing.T) {
	digest16 := bytes.Repeat([]byte{0xAB}, 16)
	digest20 := bytes.Repeat([]byte{0xCD}, 20)

	tests := []struct {
		name string
		data []byte
		want *MAC
	}{
		{"empty", nil, nil},
		{"one byte", []byte{0x01}, &MAC{Digest: []byte{0x01}, Partial: true}},
		{"three bytes", []byte{1, 2, 3}, &MAC{Digest: []byte{1, 2, 3}, Partial: true}},
		{"key id only", []byte{0, 0, 0, 0}, &MAC{KeyID: 0, Digest: []byte{}}},
		{"key id and one byte", []byte{0, 0, 0, 7, 9}, &MAC{KeyID: 7, Digest: []byte{9}}},
		{"md5", concat([]byte{0, 0, 0, 1}, digest16), &MAC{KeyID: 1, Digest: digest16}},
		{"sha1", concat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, digest20), &MAC{KeyID: 0xDEADBEEF, Digest: digest20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest, err := decodeMAC(tt.data)
			if err != nil {
				t.Fatalf("decodeMAC failed: %v", err)
			}
			if len(rest) != 0 {
				t.Errorf("Expected all bytes consumed, %d left", len(rest))
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("Expected no MAC, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Expected MAC, got nil")
			}
			if got.KeyID != tt.want.KeyID || got.Partial != tt.want.Partial || !bytes.Equal(got.Digest, tt.want.Digest) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Len() != len(tt.data) {
				t.Errorf("Len = %d, want %d", got.Len(), len(tt.data))
			}
			if enc := appendMAC(nil, got); !bytes.Equal(enc, tt.data) {
				t.Errorf("appendMAC = %x, want %x", enc, tt.data)
			}
		})
	}
}
