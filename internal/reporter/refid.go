package reporter

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/ntpwire/pkg/ntp"
)

// Reference ID interpretations.
const (
	RefIDNone    = "none"    // all zero
	RefIDKiss    = "kiss"    // stratum 0 kiss code
	RefIDClock   = "clock"   // stratum 1 reference clock name
	RefIDAddress = "address" // IPv4 address, or hash of an IPv6 address
	RefIDRaw     = "raw"     // stratum 0 client request, no defined meaning
)

// kissCodes are the RFC 5905 kiss-o'-death codes.
var kissCodes = map[string]string{
	"ACST": "the association belongs to a unicast server",
	"AUTH": "server authentication failed",
	"AUTO": "autokey sequence failed",
	"BCST": "the association belongs to a broadcast server",
	"CRYP": "cryptographic authentication or identification failed",
	"DENY": "access denied by remote server",
	"DROP": "lost peer in symmetric mode",
	"RSTR": "access denied due to local policy",
	"INIT": "the association has not yet synchronized for the first time",
	"MCST": "the association belongs to a dynamically discovered server",
	"NKEY": "no key found",
	"NTSN": "NTS negative acknowledgement",
	"RATE": "rate exceeded",
	"RMOT": "alteration of association from a remote host running ntpdc",
	"STEP": "a step change in system time has occurred",
}

// RefID returns how the reference ID of p is interpreted and its display text.
func RefID(p *ntp.Packet) (kind, text string) {
	id := p.ReferenceID
	if id == [4]byte{} {
		return RefIDNone, ""
	}
	switch p.Stratum {
	case 0:
		if !kissMode(p) {
			return RefIDRaw, hexID(id)
		}
		if s, ok := asciiID(id); ok {
			return RefIDKiss, s
		}
		return RefIDKiss, hexID(id)
	case 1:
		if s, ok := asciiID(id); ok {
			return RefIDClock, s
		}
		return RefIDClock, hexID(id)
	}
	return RefIDAddress, netip.AddrFrom4(id).String()
}

// KissCode returns the kiss-o'-death code carried by p, if any. Only
// non-client packets with stratum 0 and a printable reference ID qualify.
func KissCode(p *ntp.Packet) (string, bool) {
	if p.Stratum != 0 || !kissMode(p) {
		return "", false
	}
	return asciiID(p.ReferenceID)
}

// kissMode reports whether p is sent in a mode that can carry a kiss code.
// Clients send stratum 0 on every request.
func kissMode(p *ntp.Packet) bool {
	return p.Mode != ntp.ModeClient
}

// KissMeaning describes a kiss code. Unregistered codes return "".
func KissMeaning(code string) string {
	return kissCodes[code]
}

// asciiID reads id as left-justified, zero-padded ASCII.
func asciiID(id [4]byte) (string, bool) {
	s := strings.TrimRight(string(id[:]), "\x00")
	if s == "" {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return "", false
		}
	}
	return s, true
}

func hexID(id [4]byte) string {
	return fmt.Sprintf("0x%02x%02x%02x%02x", id[0], id[1], id[2], id[3])
}
