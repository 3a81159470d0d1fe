package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/ntpwire/pkg/ntp"
	"firestige.xyz/ntpwire/pkg/ntptime"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build an NTP packet and print it as hex",
	Long: `Build an NTP packet from flags and print its wire form as hex.

The defaults produce an NTPv4 client request with all other fields zero.

Examples:
  ntpwire encode --now
  ntpwire encode --mode server --stratum 1 --refid GPS --now
  ntpwire encode --poll 64s --precision 1us
  ntpwire encode --ext 0x0104:deadbeef --key-id 1 --digest 00112233445566778899aabbccddeeff`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEncode(encodeOpts, time.Now(), cmd.OutOrStdout())
	},
}

type encodeOptions struct {
	leap       uint8
	version    uint8
	mode       string
	stratum    uint8
	poll       string
	precision  string
	rootDelay  time.Duration
	rootDisp   time.Duration
	refID      string
	now        bool
	transmit   string
	extensions []string
	keyID      uint32
	digest     string
	withMAC    bool
}

var encodeOpts encodeOptions

func init() {
	f := encodeCmd.Flags()
	f.Uint8Var(&encodeOpts.leap, "leap", 0, "leap indicator 0-3")
	f.Uint8Var(&encodeOpts.version, "ntp-version", 4, "protocol version 0-7")
	f.StringVar(&encodeOpts.mode, "mode", "client", "mode name or number 0-7")
	f.Uint8Var(&encodeOpts.stratum, "stratum", 0, "stratum")
	f.StringVar(&encodeOpts.poll, "poll", "0", "poll interval as log2 seconds or a duration such as 64s")
	f.StringVar(&encodeOpts.precision, "precision", "0", "clock precision as log2 seconds or a duration such as 1us")
	f.DurationVar(&encodeOpts.rootDelay, "root-delay", 0, "root delay")
	f.DurationVar(&encodeOpts.rootDisp, "root-dispersion", 0, "root dispersion")
	f.StringVar(&encodeOpts.refID, "refid", "", "reference ID: IPv4 address, or up to 4 ASCII characters")
	f.BoolVar(&encodeOpts.now, "now", false, "set the transmit timestamp to the current time")
	f.StringVar(&encodeOpts.transmit, "transmit", "", "transmit timestamp as RFC 3339")
	f.StringArrayVar(&encodeOpts.extensions, "ext", nil, "extension field TYPE:HEXPAYLOAD, payload zero-padded to 4 bytes (repeatable)")
	f.Uint32Var(&encodeOpts.keyID, "key-id", 0, "MAC key identifier")
	f.StringVar(&encodeOpts.digest, "digest", "", "MAC digest as hex")
	f.BoolVar(&encodeOpts.withMAC, "mac", false, "append a MAC even when --key-id and --digest are unset")
}

func runEncode(opts encodeOptions, now time.Time, w io.Writer) error {
	p, err := buildPacket(opts, now)
	if err != nil {
		return err
	}
	out, err := ntp.Encode(p)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	fmt.Fprintln(w, hex.EncodeToString(out))
	return nil
}

func buildPacket(opts encodeOptions, now time.Time) (*ntp.Packet, error) {
	mode, err := parseMode(opts.mode)
	if err != nil {
		return nil, err
	}
	refID, err := parseRefID(opts.refID)
	if err != nil {
		return nil, err
	}
	poll, err := parseLog2("poll", opts.poll)
	if err != nil {
		return nil, err
	}
	precision, err := parseLog2("precision", opts.precision)
	if err != nil {
		return nil, err
	}

	p := &ntp.Packet{
		Leap:           ntp.LeapIndicator(opts.leap),
		Version:        opts.version,
		Mode:           mode,
		Stratum:        opts.stratum,
		Poll:           poll,
		Precision:      precision,
		RootDelay:      ntptime.ShortFromDuration(opts.rootDelay),
		RootDispersion: ntptime.ShortFromDuration(opts.rootDisp),
		ReferenceID:    refID,
	}

	switch {
	case opts.transmit != "":
		t, err := time.Parse(time.RFC3339Nano, opts.transmit)
		if err != nil {
			return nil, fmt.Errorf("invalid --transmit: %w", err)
		}
		p.TransmitTime = ntptime.FromTime(t)
	case opts.now:
		p.TransmitTime = ntptime.FromTime(now)
	}

	for _, arg := range opts.extensions {
		ext, err := parseExtension(arg)
		if err != nil {
			return nil, err
		}
		p.Extensions = append(p.Extensions, ext)
	}

	if opts.withMAC || opts.keyID != 0 || opts.digest != "" {
		mac := &ntp.MAC{KeyID: opts.keyID}
		if opts.digest != "" {
			if mac.Digest, err = parseHex(opts.digest); err != nil {
				return nil, fmt.Errorf("invalid --digest: %w", err)
			}
		}
		p.MAC = mac
	}
	return p, nil
}

// parseMode accepts a mode name such as "client" or its number.
func parseMode(s string) (ntp.Mode, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		if n > uint64(ntp.ModePrivate) {
			return 0, fmt.Errorf("mode %d out of range 0-7", n)
		}
		return ntp.Mode(n), nil
	}
	for m := ntp.ModeReserved; m <= ntp.ModePrivate; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// parseLog2 accepts a log2 exponent such as -20, or a positive duration that
// is rounded up to the next power of two seconds.
func parseLog2(name, s string) (int8, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 8); err == nil {
		return int8(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: want a log2 exponent or a duration", name, s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid --%s %q: duration must be positive", name, s)
	}
	return ntptime.SecondsToLog2(d.Seconds()), nil
}

// parseRefID accepts an IPv4 address or up to four ASCII characters.
func parseRefID(s string) ([4]byte, error) {
	var id [4]byte
	if s == "" {
		return id, nil
	}
	if addr, err := netip.ParseAddr(s); err == nil && addr.Is4() {
		return addr.As4(), nil
	}
	if len(s) > 4 {
		return id, fmt.Errorf("reference ID %q longer than 4 characters", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return id, fmt.Errorf("reference ID %q is not printable ASCII", s)
		}
	}
	copy(id[:], s)
	return id, nil
}

// parseExtension parses TYPE:HEXPAYLOAD. TYPE may be decimal or 0x-prefixed.
func parseExtension(arg string) (ntp.ExtensionField, error) {
	typ, payloadHex, _ := strings.Cut(arg, ":")
	t, err := strconv.ParseUint(typ, 0, 16)
	if err != nil {
		return ntp.ExtensionField{}, fmt.Errorf("invalid extension type %q: %w", typ, err)
	}
	var payload []byte
	if payloadHex != "" {
		if payload, err = hex.DecodeString(payloadHex); err != nil {
			return ntp.ExtensionField{}, fmt.Errorf("invalid extension payload %q: %w", payloadHex, err)
		}
	}
	if pad := len(payload) % 4; pad != 0 {
		payload = append(payload, make([]byte, 4-pad)...)
	}
	if len(payload) > 0xFFFF-4 {
		return ntp.ExtensionField{}, fmt.Errorf("extension payload of %d bytes too long", len(payload))
	}
	return ntp.ExtensionField{
		Type:    uint16(t),
		Length:  uint16(4 + len(payload)),
		Payload: payload,
	}, nil
}
