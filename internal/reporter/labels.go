package reporter

import (
	"strconv"
	"time"

	"firestige.xyz/ntpwire/pkg/ntp"
	"firestige.xyz/ntpwire/pkg/ntptime"
)

// Labels represents key-value metadata derived from a packet.
type Labels map[string]string

// Label naming constants following {protocol}.{field} convention.
const (
	LabelVersion          = "ntp.version"
	LabelMode             = "ntp.mode"
	LabelLeap             = "ntp.leap"
	LabelStratum          = "ntp.stratum"
	LabelPoll             = "ntp.poll"              // log2 seconds
	LabelPollSeconds      = "ntp.poll_seconds"      // 2^poll
	LabelPrecision        = "ntp.precision"         // log2 seconds
	LabelPrecisionSeconds = "ntp.precision_seconds" // 2^precision
	LabelRootDelay        = "ntp.root_delay"        // seconds, 6 decimals
	LabelRootDispersion   = "ntp.root_dispersion"   // seconds, 6 decimals
	LabelRefID            = "ntp.refid"
	LabelRefIDKind        = "ntp.refid_kind" // none / kiss / clock / address
	LabelKissCode         = "ntp.kiss_code"
	LabelTransmit         = "ntp.xmt" // RFC 3339 with nanoseconds
	LabelTransmitEra      = "ntp.xmt_era"
	LabelExtensions       = "ntp.extensions"
	LabelMACKeyID         = "ntp.mac_key_id"
	LabelMACDigestLen     = "ntp.mac_digest_len"
	LabelMACPartial       = "ntp.mac_partial" // "true" when the trailer is 1-3 bytes
)

// PacketLabels derives the ntp.* labels of p. pivot resolves the timestamp era.
func PacketLabels(p *ntp.Packet, pivot time.Time) Labels {
	kind, text := RefID(p)
	l := Labels{
		LabelVersion:          strconv.Itoa(int(p.Version)),
		LabelMode:             p.Mode.String(),
		LabelLeap:             p.Leap.String(),
		LabelStratum:          strconv.Itoa(int(p.Stratum)),
		LabelPoll:             strconv.Itoa(int(p.Poll)),
		LabelPollSeconds:      formatSeconds(ntptime.Log2ToSeconds(p.Poll)),
		LabelPrecision:        strconv.Itoa(int(p.Precision)),
		LabelPrecisionSeconds: formatSeconds(ntptime.Log2ToSeconds(p.Precision)),
		LabelRootDelay:        strconv.FormatFloat(ntptime.ShortToDuration(p.RootDelay).Seconds(), 'f', 6, 64),
		LabelRootDispersion:   strconv.FormatFloat(ntptime.ShortToDuration(p.RootDispersion).Seconds(), 'f', 6, 64),
		LabelRefIDKind:        kind,
		LabelExtensions:       strconv.Itoa(len(p.Extensions)),
	}
	if text != "" {
		l[LabelRefID] = text
	}
	if code, ok := KissCode(p); ok {
		l[LabelKissCode] = code
	}
	if !p.TransmitTime.IsZero() {
		xmt := ntptime.ToTime(p.TransmitTime, pivot)
		l[LabelTransmit] = xmt.Format(time.RFC3339Nano)
		l[LabelTransmitEra] = strconv.FormatInt(ntptime.Era(xmt), 10)
	}
	if p.MAC != nil {
		l[LabelMACDigestLen] = strconv.Itoa(len(p.MAC.Digest))
		if p.MAC.Partial {
			l[LabelMACPartial] = "true"
		} else {
			l[LabelMACKeyID] = strconv.FormatUint(uint64(p.MAC.KeyID), 10)
		}
	}
	return l
}

// formatSeconds prints a power of two exactly, in exponent form when small.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
