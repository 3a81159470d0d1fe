package ntp

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Captured packets, hex with whitespace for readability.
const (
	// NTPv3 symmetric active, LI=3, poll 10, precision -6.
	hexV3SymmetricActive = `
		d9000afa 00000000 00010290 00000000
		00000000 00000000 00000000 00000000
		00000000 00000000 c50204ec ec42ee92`

	// NTPv4 client request with a 20-byte MAC (key 1, 16-byte MD5 digest).
	hexV4ClientMAC = `
		23000000 0000000c 00000000 00000000
		00000000 00000000 00000000 00000000
		00000000 00000000 cc25cc13 2b021000
		00000001 52800c2b 59006466 84f44ca4 eece12b8`

	// Same request with four zero bytes before the MAC.
	hexV4ClientZeroPrefixMAC = `
		23000000 0000000c 00000000 00000000
		00000000 00000000 00000000 00000000
		00000000 00000000 cc25cc13 2b021000
		00000000 00000001 52800c2b 59006466 84f44ca4 eece12b8`
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return b
}

// header builds a 48-byte header with the given first byte and zeros elsewhere.
func header(first byte) []byte {
	b := make([]byte, HeaderLen)
	b[0] = first
	return b
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var packetCmpOpts = []cmp.Option{cmpopts.EquateEmpty()}

func diffPackets(want, got *Packet) string {
	return cmp.Diff(want, got, packetCmpOpts...)
}
