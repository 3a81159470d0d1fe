package reporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/ntpwire/pkg/ntp"
)

const (
	hexV3SymmetricActive = "d9000afa000000000001029000000000" +
		"00000000000000000000000000000000" +
		"0000000000000000c50204ecec42ee92"
	hexV4ClientMAC = "230000000000000c0000000000000000" +
		"00000000000000000000000000000000" +
		"0000000000000000cc25cc132b021000" +
		"0000000152800c2b5900646684f44ca4eece12b8"
)

func record(t *testing.T, h string) *Record {
	t.Helper()
	raw, err := hex.DecodeString(h)
	require.NoError(t, err)
	p, err := ntp.Decode(raw)
	require.NoError(t, err)
	return &Record{
		Timestamp: time.Date(2008, 7, 14, 12, 59, 0, 0, time.UTC),
		Src:       netip.MustParseAddrPort("192.0.2.10:50123"),
		Dst:       netip.MustParseAddrPort("192.0.2.1:123"),
		Raw:       raw,
		Packet:    p,
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.False(t, opts.IncludeRaw)
	assert.Equal(t, "auto", opts.Pivot)

	opts, err = ParseOptions(map[string]any{"include_raw": "true", "pivot": "NOW"})
	require.NoError(t, err)
	assert.True(t, opts.IncludeRaw)
	assert.Equal(t, "now", opts.Pivot)

	opts, err = ParseOptions(map[string]any{"pivot": "2036-02-07T06:28:16Z"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2036, 2, 7, 6, 28, 16, 0, time.UTC), opts.pivotFor(&Record{}))

	_, err = ParseOptions(map[string]any{"colour": true})
	assert.Error(t, err)

	_, err = ParseOptions(map[string]any{"pivot": "yesterday"})
	assert.Error(t, err)
}

func TestPivotFor(t *testing.T) {
	captured := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	auto := Options{Pivot: "auto"}
	assert.Equal(t, captured, auto.pivotFor(&Record{Timestamp: captured}))
	assert.WithinDuration(t, time.Now(), auto.pivotFor(&Record{}), time.Minute)

	now := Options{Pivot: "now"}
	assert.WithinDuration(t, time.Now(), now.pivotFor(&Record{Timestamp: captured}), time.Minute)
}

func TestRefID(t *testing.T) {
	tests := []struct {
		name     string
		mode     ntp.Mode
		stratum  uint8
		id       [4]byte
		wantKind string
		wantText string
	}{
		{"zero", ntp.ModeServer, 2, [4]byte{}, RefIDNone, ""},
		{"kiss", ntp.ModeServer, 0, [4]byte{'R', 'A', 'T', 'E'}, RefIDKiss, "RATE"},
		{"kiss binary", ntp.ModeServer, 0, [4]byte{0x01, 0x02, 0x03, 0x04}, RefIDKiss, "0x01020304"},
		{"client printable", ntp.ModeClient, 0, [4]byte{'R', 'A', 'T', 'E'}, RefIDRaw, "0x52415445"},
		{"clock padded", ntp.ModeServer, 1, [4]byte{'G', 'P', 'S', 0}, RefIDClock, "GPS"},
		{"clock binary", ntp.ModeServer, 1, [4]byte{0xff, 0, 0, 1}, RefIDClock, "0xff000001"},
		{"address", ntp.ModeServer, 2, [4]byte{192, 0, 2, 1}, RefIDAddress, "192.0.2.1"},
		{"unsynchronized address", ntp.ModeServer, 16, [4]byte{127, 127, 1, 0}, RefIDAddress, "127.127.1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ntp.Packet{Mode: tt.mode, Stratum: tt.stratum, ReferenceID: tt.id}
			kind, text := RefID(p)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantText, text)

			_, isKiss := KissCode(p)
			if isKiss {
				assert.Equal(t, RefIDKiss, kind, "KissCode accepted a %s reference id", kind)
			}
			if kind != RefIDKiss {
				assert.False(t, isKiss, "KissCode accepted a %s reference id", kind)
			}
		})
	}
}

func TestKissCode(t *testing.T) {
	kod := &ntp.Packet{Leap: ntp.LeapUnsynchronized, Version: 4, Mode: ntp.ModeServer, ReferenceID: [4]byte{'D', 'E', 'N', 'Y'}}
	code, ok := KissCode(kod)
	assert.True(t, ok)
	assert.Equal(t, "DENY", code)
	assert.Equal(t, "access denied by remote server", KissMeaning(code))

	client := &ntp.Packet{Version: 4, Mode: ntp.ModeClient, ReferenceID: [4]byte{'D', 'E', 'N', 'Y'}}
	_, ok = KissCode(client)
	assert.False(t, ok)

	secondary := &ntp.Packet{Version: 4, Mode: ntp.ModeServer, Stratum: 2, ReferenceID: [4]byte{'D', 'E', 'N', 'Y'}}
	_, ok = KissCode(secondary)
	assert.False(t, ok)

	assert.Empty(t, KissMeaning("XXXX"))
}

func TestPacketLabels(t *testing.T) {
	rec := record(t, hexV4ClientMAC)
	labels := PacketLabels(rec.Packet, rec.Timestamp)

	assert.Equal(t, Labels{
		LabelVersion:        "4",
		LabelMode:           "client",
		LabelLeap:           "no-warning",
		LabelStratum:        "0",
		LabelPoll:             "0",
		LabelPollSeconds:      "1",
		LabelPrecision:        "0",
		LabelPrecisionSeconds: "1",
		LabelRootDelay:        "0.000183",
		LabelRootDispersion:   "0.000000",
		LabelRefIDKind:        RefIDNone,
		LabelExtensions:       "0",
		LabelTransmit:         "2008-07-14T12:58:59.168000221Z",
		LabelTransmitEra:      "0",
		LabelMACKeyID:         "1",
		LabelMACDigestLen:     "16",
	}, labels)
}

func TestPacketLabelsLog2Seconds(t *testing.T) {
	p := &ntp.Packet{Version: 4, Mode: ntp.ModeServer, Stratum: 2, Poll: 6, Precision: -20,
		RootDelay: ntp.NewShort(1, 0x8000), RootDispersion: ntp.NewShort(0, 0x0010)}
	labels := PacketLabels(p, time.Now())

	assert.Equal(t, "64", labels[LabelPollSeconds])
	assert.Equal(t, "9.5367431640625e-07", labels[LabelPrecisionSeconds])
	assert.Equal(t, "1.500000", labels[LabelRootDelay])
	assert.Equal(t, "0.000244", labels[LabelRootDispersion])
}

func TestPacketLabelsSecondEra(t *testing.T) {
	pivot := time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &ntp.Packet{Version: 4, Mode: ntp.ModeServer, TransmitTime: ntp.Timestamp{Seconds: 100}}
	labels := PacketLabels(p, pivot)

	assert.Equal(t, "2036-02-07T06:29:56Z", labels[LabelTransmit])
	assert.Equal(t, "1", labels[LabelTransmitEra])
}

func TestPacketLabelsPartialMAC(t *testing.T) {
	p := &ntp.Packet{Version: 3, Mode: ntp.ModeServer, Stratum: 1, ReferenceID: [4]byte{'P', 'P', 'S', 0},
		MAC: &ntp.MAC{Partial: true, Digest: []byte{1, 2, 3}}}
	labels := PacketLabels(p, time.Now())

	assert.Equal(t, "true", labels[LabelMACPartial])
	assert.Equal(t, "3", labels[LabelMACDigestLen])
	assert.NotContains(t, labels, LabelMACKeyID)
	assert.NotContains(t, labels, LabelTransmit)
	assert.Equal(t, "PPS", labels[LabelRefID])
	assert.Equal(t, RefIDClock, labels[LabelRefIDKind])
}

func TestNewInvalid(t *testing.T) {
	_, err := New("xml", nil, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("text", map[string]any{"unknown": 1}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestReportNilPacket(t *testing.T) {
	for _, format := range []string{"text", "json", "yaml"} {
		r, err := New(format, nil, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Error(t, r.Report(context.Background(), &Record{}), format)
		assert.Error(t, r.Report(context.Background(), nil), format)
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("text", map[string]any{"include_raw": true}, &buf)
	require.NoError(t, err)

	rec := record(t, hexV4ClientMAC)
	require.NoError(t, r.Report(context.Background(), rec))
	require.NoError(t, r.Flush(context.Background()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, "[2008-07-14T12:59:00.000Z] 192.0.2.10:50123 -> 192.0.2.1:123 NTPv4 client len=68", lines[0])
	assert.Contains(t, lines, "  ntp.mac_key_id=1")
	assert.Contains(t, lines, "  ntp.xmt=2008-07-14T12:58:59.168000221Z")
	assert.Contains(t, lines, "  mac digest=52800c2b5900646684f44ca4eece12b8")
	assert.Contains(t, lines, "  raw="+hexV4ClientMAC)

	var labelLines []string
	for _, l := range lines {
		if strings.HasPrefix(l, "  ntp.") {
			labelLines = append(labelLines, l)
		}
	}
	assert.IsNonDecreasing(t, labelLines)
}

func TestTextReporterKissOfDeath(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("text", nil, &buf)
	require.NoError(t, err)

	p := &ntp.Packet{Leap: ntp.LeapUnsynchronized, Version: 4, Mode: ntp.ModeServer, ReferenceID: [4]byte{'R', 'A', 'T', 'E'}}
	require.NoError(t, r.Report(context.Background(), &Record{Packet: p}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "NTPv4 server len=48\n"), out)
	assert.Contains(t, out, "  ntp.kiss_code=RATE\n")
	assert.Contains(t, out, "  kiss-o'-death RATE: rate exceeded\n")
}

func TestTextReporterExtensions(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("", nil, &buf)
	require.NoError(t, err)

	p := &ntp.Packet{Version: 4, Mode: ntp.ModeClient,
		Extensions: []ntp.ExtensionField{{Type: 0x0104, Length: 8, Payload: []byte{0xde, 0xad, 0xbe, 0xef}}}}
	require.NoError(t, r.Report(context.Background(), &Record{Packet: p}))
	assert.Contains(t, buf.String(), "  ext[0] type=0x0104 length=8 payload=deadbeef\n")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("json", nil, &buf)
	require.NoError(t, err)

	require.NoError(t, r.Report(context.Background(), record(t, hexV4ClientMAC)))
	require.NoError(t, r.Report(context.Background(), record(t, hexV3SymmetricActive)))
	require.NoError(t, r.Flush(context.Background()))

	sc := bufio.NewScanner(&buf)
	var docs []map[string]any
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		docs = append(docs, m)
	}
	require.Len(t, docs, 2)

	client := docs[0]
	assert.Equal(t, "192.0.2.10:50123", client["src"])
	assert.Equal(t, float64(68), client["length"])
	assert.Equal(t, "client", client["mode"])
	assert.Equal(t, map[string]any{"key_id": float64(1), "digest": "52800c2b5900646684f44ca4eece12b8"}, client["mac"])
	assert.Equal(t, map[string]any{"raw": "cc25cc13.2b021000", "time": "2008-07-14T12:58:59.168000221Z", "era": float64(0)}, client["transmit_time"])
	assert.Equal(t, float64(1), client["poll_seconds"])
	assert.Equal(t, map[string]any{"raw": "00000000.00000000"}, client["origin_time"])
	assert.NotContains(t, client, "raw")

	sym := docs[1]
	assert.Equal(t, "unsynchronized", sym["leap"])
	assert.Equal(t, float64(3), sym["version"])
	assert.Equal(t, "symmetric-active", sym["mode"])
	assert.Equal(t, float64(10), sym["poll"])
	assert.Equal(t, float64(-6), sym["precision"])
	assert.Equal(t, float64(1024), sym["poll_seconds"])
	assert.Equal(t, 0.015625, sym["precision_seconds"])
	assert.InDelta(t, 1.010009765625, sym["root_dispersion"], 1e-9)
	assert.NotContains(t, sym, "mac")
	assert.NotContains(t, sym, "kiss_code")
}

func TestYAMLReporter(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("yaml", map[string]any{"include_raw": true}, &buf)
	require.NoError(t, err)

	require.NoError(t, r.Report(context.Background(), record(t, hexV4ClientMAC)))
	require.NoError(t, r.Report(context.Background(), record(t, hexV3SymmetricActive)))

	dec := yaml.NewDecoder(&buf)
	var docs []map[string]any
	for {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			break
		}
		docs = append(docs, m)
	}
	require.Len(t, docs, 2)

	assert.Equal(t, "client", docs[0]["mode"])
	assert.Equal(t, hexV4ClientMAC, docs[0]["raw"])
	mac, ok := docs[0]["mac"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, mac["key_id"])

	assert.Equal(t, "symmetric-active", docs[1]["mode"])
	ts, ok := docs[1]["transmit_time"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2004-09-27T03:18:04.9228963Z", ts["time"])
}
