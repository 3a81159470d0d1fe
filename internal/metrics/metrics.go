// Package metrics implements Prometheus metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/ntpwire/pkg/ntp"
)

const namespace = "ntpwire"

// Decode results used as the "result" label.
const (
	ResultOK        = "ok"
	ResultTruncated = "truncated"
	ResultError     = "error"
)

// Collector holds the decoder metrics. All methods are safe for concurrent
// use.
type Collector struct {
	// DatagramsTotal counts datagrams read per source kind
	DatagramsTotal *prometheus.CounterVec
	// DecodeTotal counts decode attempts per result
	DecodeTotal *prometheus.CounterVec
	// PacketsTotal counts decoded packets per version and mode
	PacketsTotal *prometheus.CounterVec
	// ExtensionFieldsTotal counts extension fields in decoded packets
	ExtensionFieldsTotal prometheus.Counter
	// ExtensionRecoveredTotal counts decoded packets whose extension scan
	// stopped on a length violation and left the rest to the MAC
	ExtensionRecoveredTotal prometheus.Counter
	// MACTotal counts decoded packets per MAC presence
	MACTotal *prometheus.CounterVec
	// DecodeLatencySeconds measures time spent in Decode
	DecodeLatencySeconds prometheus.Histogram
	// SkippedFramesTotal counts capture frames without an NTP datagram and
	// oversized UDP datagrams
	SkippedFramesTotal prometheus.Counter
	// RateLimitedTotal counts datagrams dropped by the per-source limiter
	RateLimitedTotal prometheus.Counter
}

// NewCollector registers the metrics with reg. A nil reg leaves them
// unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		DatagramsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datagrams_total",
				Help:      "Total number of datagrams read",
			},
			[]string{"source"},
		),
		DecodeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_total",
				Help:      "Total number of decode attempts by result",
			},
			[]string{"result"},
		),
		PacketsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packets_total",
				Help:      "Total number of decoded packets by version and mode",
			},
			[]string{"version", "mode"},
		),
		ExtensionFieldsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extension_fields_total",
				Help:      "Total number of extension fields decoded",
			},
		),
		ExtensionRecoveredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extension_recovered_total",
				Help:      "Total number of decoded packets whose trailing bytes after the extension fields were taken as the MAC",
			},
		),
		MACTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mac_total",
				Help:      "Total number of decoded packets by MAC presence (none, full, partial)",
			},
			[]string{"kind"},
		),
		DecodeLatencySeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decode_latency_seconds",
				Help:      "Latency of packet decoding in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0000001, 2, 16), // 100ns to ~3ms
			},
		),
		SkippedFramesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_skipped_frames_total",
				Help:      "Total number of capture frames or datagrams dropped before decoding",
			},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of datagrams dropped by per-source rate limiting",
			},
		),
	}
}

// ObserveDatagram records one datagram read from source.
func (c *Collector) ObserveDatagram(source string) {
	c.DatagramsTotal.WithLabelValues(source).Inc()
}

// ObserveDecode records the outcome of one decode. p is nil on failure.
func (c *Collector) ObserveDecode(p *ntp.Packet, info ntp.DecodeInfo, result string, took time.Duration) {
	c.DecodeTotal.WithLabelValues(result).Inc()
	c.DecodeLatencySeconds.Observe(took.Seconds())
	if p == nil {
		return
	}
	if info.Recovered() {
		c.ExtensionRecoveredTotal.Inc()
	}

	c.PacketsTotal.WithLabelValues(strconv.Itoa(int(p.Version)), p.Mode.String()).Inc()
	c.ExtensionFieldsTotal.Add(float64(len(p.Extensions)))

	kind := "none"
	switch {
	case p.MAC == nil:
	case p.MAC.Partial:
		kind = "partial"
	default:
		kind = "full"
	}
	c.MACTotal.WithLabelValues(kind).Inc()
}

// Result classifies a decode error into a result label. Extension length
// violations never fail a decode, so only truncation has its own class.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ntp.ErrTruncated):
		return ResultTruncated
	}
	return ResultError
}
