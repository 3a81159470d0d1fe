package reporter

import (
	"encoding/hex"
	"time"

	"firestige.xyz/ntpwire/pkg/ntp"
	"firestige.xyz/ntpwire/pkg/ntptime"
)

// packetView is the structured form written by the JSON and YAML reporters.
type packetView struct {
	Time   string `json:"time,omitempty" yaml:"time,omitempty"`
	Src    string `json:"src,omitempty" yaml:"src,omitempty"`
	Dst    string `json:"dst,omitempty" yaml:"dst,omitempty"`
	Length int    `json:"length" yaml:"length"`

	Leap           string  `json:"leap" yaml:"leap"`
	Version        uint8   `json:"version" yaml:"version"`
	Mode           string  `json:"mode" yaml:"mode"`
	Stratum        uint8   `json:"stratum" yaml:"stratum"`
	Poll             int8    `json:"poll" yaml:"poll"`
	PollSeconds      float64 `json:"poll_seconds" yaml:"poll_seconds"`
	Precision        int8    `json:"precision" yaml:"precision"`
	PrecisionSeconds float64 `json:"precision_seconds" yaml:"precision_seconds"`
	RootDelay        float64 `json:"root_delay" yaml:"root_delay"`
	RootDispersion   float64 `json:"root_dispersion" yaml:"root_dispersion"`
	RefID            string  `json:"refid,omitempty" yaml:"refid,omitempty"`
	RefIDKind        string  `json:"refid_kind" yaml:"refid_kind"`
	KissCode         string  `json:"kiss_code,omitempty" yaml:"kiss_code,omitempty"`

	ReferenceTime timestampView `json:"reference_time" yaml:"reference_time"`
	OriginTime    timestampView `json:"origin_time" yaml:"origin_time"`
	ReceiveTime   timestampView `json:"receive_time" yaml:"receive_time"`
	TransmitTime  timestampView `json:"transmit_time" yaml:"transmit_time"`

	Extensions []extensionView `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	MAC        *macView        `json:"mac,omitempty" yaml:"mac,omitempty"`
	Raw        string          `json:"raw,omitempty" yaml:"raw,omitempty"`
}

type timestampView struct {
	Raw  string `json:"raw" yaml:"raw"`
	Time string `json:"time,omitempty" yaml:"time,omitempty"`
	Era  *int64 `json:"era,omitempty" yaml:"era,omitempty"`
}

type extensionView struct {
	Type    uint16 `json:"type" yaml:"type"`
	Length  uint16 `json:"length" yaml:"length"`
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

type macView struct {
	KeyID   *uint32 `json:"key_id,omitempty" yaml:"key_id,omitempty"`
	Digest  string  `json:"digest,omitempty" yaml:"digest,omitempty"`
	Partial bool    `json:"partial,omitempty" yaml:"partial,omitempty"`
}

func newPacketView(rec *Record, opts Options) packetView {
	p := rec.Packet
	pivot := opts.pivotFor(rec)
	kind, refid := RefID(p)
	code, _ := KissCode(p)

	v := packetView{
		Length:         p.Len(),
		Leap:           p.Leap.String(),
		Version:        p.Version,
		Mode:           p.Mode.String(),
		Stratum:        p.Stratum,
		Poll:             p.Poll,
		PollSeconds:      ntptime.Log2ToSeconds(p.Poll),
		Precision:        p.Precision,
		PrecisionSeconds: ntptime.Log2ToSeconds(p.Precision),
		RootDelay:        ntptime.ShortToDuration(p.RootDelay).Seconds(),
		RootDispersion:   ntptime.ShortToDuration(p.RootDispersion).Seconds(),
		RefID:            refid,
		RefIDKind:        kind,
		KissCode:         code,
		ReferenceTime:    newTimestampView(p.ReferenceTime, pivot),
		OriginTime:       newTimestampView(p.OriginTime, pivot),
		ReceiveTime:      newTimestampView(p.ReceiveTime, pivot),
		TransmitTime:     newTimestampView(p.TransmitTime, pivot),
	}
	if !rec.Timestamp.IsZero() {
		v.Time = rec.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if rec.Src.IsValid() {
		v.Src = rec.Src.String()
	}
	if rec.Dst.IsValid() {
		v.Dst = rec.Dst.String()
	}
	for _, ext := range p.Extensions {
		v.Extensions = append(v.Extensions, extensionView{
			Type:    ext.Type,
			Length:  ext.Length,
			Payload: hex.EncodeToString(ext.Payload),
		})
	}
	if p.MAC != nil {
		m := &macView{Digest: hex.EncodeToString(p.MAC.Digest), Partial: p.MAC.Partial}
		if !p.MAC.Partial {
			keyID := p.MAC.KeyID
			m.KeyID = &keyID
		}
		v.MAC = m
	}
	if opts.IncludeRaw {
		v.Raw = hex.EncodeToString(rec.Raw)
	}
	return v
}

func newTimestampView(ts ntp.Timestamp, pivot time.Time) timestampView {
	v := timestampView{Raw: ts.String()}
	if !ts.IsZero() {
		t := ntptime.ToTime(ts, pivot)
		era := ntptime.Era(t)
		v.Time = t.Format(time.RFC3339Nano)
		v.Era = &era
	}
	return v
}
