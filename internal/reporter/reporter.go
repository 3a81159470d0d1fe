// Package reporter renders decoded NTP packets for people and tools.
package reporter

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/ntpwire/pkg/ntp"
)

// Record is one decoded datagram.
type Record struct {
	Timestamp time.Time // capture or receive time, zero if unknown
	Src       netip.AddrPort
	Dst       netip.AddrPort
	Raw       []byte
	Packet    *ntp.Packet
}

// Reporter writes records to an output stream.
type Reporter interface {
	Report(ctx context.Context, rec *Record) error
	Flush(ctx context.Context) error
}

// Options are the format options shared by every reporter.
type Options struct {
	// IncludeRaw adds the datagram bytes as hex.
	IncludeRaw bool `mapstructure:"include_raw"`
	// Pivot selects the instant used to resolve the NTP era of timestamps:
	// "auto" (record time, falling back to now), "now", or an RFC 3339 time.
	Pivot string `mapstructure:"pivot"`

	fixedPivot time.Time
}

// ParseOptions decodes the report.options map. Unknown keys are rejected.
func ParseOptions(m map[string]any) (Options, error) {
	opts := Options{Pivot: "auto"}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Options{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Options{}, fmt.Errorf("invalid report options: %w", err)
	}

	switch strings.ToLower(opts.Pivot) {
	case "", "auto":
		opts.Pivot = "auto"
	case "now":
		opts.Pivot = "now"
	default:
		t, err := time.Parse(time.RFC3339, opts.Pivot)
		if err != nil {
			return Options{}, fmt.Errorf("invalid pivot %q: %w", opts.Pivot, err)
		}
		opts.fixedPivot = t
	}
	return opts, nil
}

// pivotFor returns the era pivot for rec.
func (o Options) pivotFor(rec *Record) time.Time {
	switch {
	case !o.fixedPivot.IsZero():
		return o.fixedPivot
	case o.Pivot != "now" && !rec.Timestamp.IsZero():
		return rec.Timestamp
	}
	return time.Now()
}

// New creates a reporter for format ("text", "json" or "yaml") writing to w.
func New(format string, options map[string]any, w io.Writer) (Reporter, error) {
	opts, err := ParseOptions(options)
	if err != nil {
		return nil, err
	}
	switch format {
	case "", "text":
		return &textReporter{w: w, opts: opts}, nil
	case "json":
		return newJSONReporter(w, opts), nil
	case "yaml":
		return &yamlReporter{w: w, opts: opts}, nil
	}
	return nil, fmt.Errorf("invalid format %q, must be text, json or yaml", format)
}

func checkRecord(rec *Record) error {
	if rec == nil || rec.Packet == nil {
		return fmt.Errorf("nil packet")
	}
	return nil
}
