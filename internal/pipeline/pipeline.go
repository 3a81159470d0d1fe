// Package pipeline implements the datagram decoding pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"firestige.xyz/ntpwire/internal/capture"
	"firestige.xyz/ntpwire/internal/log"
	"firestige.xyz/ntpwire/internal/metrics"
	"firestige.xyz/ntpwire/internal/reporter"
	"firestige.xyz/ntpwire/pkg/ntp"
)

const defaultBufferSize = 1024

// Pipeline reads datagrams from a source, decodes them and hands every
// decoded packet to a reporter. Datagrams that fail to decode are logged and
// counted; they never stop the run.
type Pipeline struct {
	source    capture.Source
	reporter  reporter.Reporter
	collector *metrics.Collector
	limiter   *capture.SourceLimiter
	bufSize   int
	logger    log.Logger

	received    atomic.Uint64
	decoded     atomic.Uint64
	recovered   atomic.Uint64
	truncated   atomic.Uint64
	otherErrors atomic.Uint64
	reported    atomic.Uint64
	rateLimited atomic.Uint64
}

// Config contains pipeline configuration.
type Config struct {
	Source     capture.Source
	Reporter   reporter.Reporter
	Metrics    *metrics.Collector     // optional
	Limiter    *capture.SourceLimiter // optional per-source rate limit
	BufferSize int                    // datagram channel buffer size
}

// Stats represents pipeline statistics.
type Stats struct {
	Datagrams uint64 // datagrams read from the source
	Decoded   uint64
	Failed    uint64
	Skipped   uint64 // frames or datagrams the source dropped before decoding
	Reported  uint64

	RateLimited uint64 // datagrams dropped before decoding

	// ExtensionRecovered counts decoded packets whose extension scan stopped
	// on a length violation; the remaining bytes became the MAC.
	ExtensionRecovered uint64

	// Failed broken down by kind
	Truncated   uint64
	OtherErrors uint64
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline requires a source")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("pipeline requires a reporter")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Pipeline{
		source:    cfg.Source,
		reporter:  cfg.Reporter,
		collector: cfg.Metrics,
		limiter:   cfg.Limiter,
		bufSize:   cfg.BufferSize,
		logger:    log.GetLogger().WithField("source", cfg.Source.Name()),
	}, nil
}

// Run processes datagrams until the source is exhausted or ctx is done.
// Cancellation is a normal stop. A source read error or a reporter error
// ends the run and is returned together with the stats collected so far.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.logger.Info("pipeline starting")

	ch := make(chan capture.Datagram, p.bufSize)
	captureErr := make(chan error, 1)
	go func() {
		captureErr <- p.captureLoop(ctx, ch)
	}()

	err := p.processLoop(ctx, ch)
	cancel()
	if cerr := <-captureErr; err == nil {
		err = cerr
	}

	if ferr := p.reporter.Flush(context.Background()); ferr != nil && err == nil {
		err = fmt.Errorf("reporter flush failed: %w", ferr)
	}

	stats := p.Stats()
	if p.collector != nil {
		p.collector.SkippedFramesTotal.Add(float64(stats.Skipped))
	}
	p.logger.WithFields(map[string]interface{}{
		"datagrams": stats.Datagrams,
		"decoded":   stats.Decoded,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
		"limited":   stats.RateLimited,
	}).Info("pipeline stopped")
	return stats, err
}

// captureLoop reads datagrams from the source and sends them to ch, closing
// ch when it returns.
func (p *Pipeline) captureLoop(ctx context.Context, ch chan<- capture.Datagram) error {
	defer close(ch)
	for {
		d, err := p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture failed: %w", err)
		}
		select {
		case ch <- d:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pipeline) processLoop(ctx context.Context, ch <-chan capture.Datagram) error {
	for d := range ch {
		if err := p.process(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// process decodes one datagram. Only reporter failures are returned.
func (p *Pipeline) process(ctx context.Context, d capture.Datagram) error {
	p.received.Add(1)
	if p.collector != nil {
		p.collector.ObserveDatagram(p.source.Name())
	}

	if !p.limiter.Allow(d.Src.Addr(), time.Now()) {
		p.rateLimited.Add(1)
		if p.collector != nil {
			p.collector.RateLimitedTotal.Inc()
		}
		return nil
	}

	start := time.Now()
	pkt, info, err := ntp.DecodeWithInfo(d.Payload)
	took := time.Since(start)

	result := metrics.Result(err)
	if p.collector != nil {
		p.collector.ObserveDecode(pkt, info, result, took)
	}

	if err != nil {
		p.countFailure(result)
		if p.logger.IsDebugEnabled() {
			p.logger.WithError(err).WithFields(map[string]interface{}{
				"src": d.Src.String(),
				"len": len(d.Payload),
			}).Debug("decode failed")
		}
		return nil
	}
	p.decoded.Add(1)
	if info.Recovered() {
		p.recovered.Add(1)
		if p.logger.IsDebugEnabled() {
			p.logger.WithError(info.ExtensionStop).WithField("src", d.Src.String()).
				Debug("extension scan stopped, trailer taken as MAC")
		}
	}

	rec := &reporter.Record{
		Timestamp: d.Timestamp,
		Src:       d.Src,
		Dst:       d.Dst,
		Raw:       d.Payload,
		Packet:    pkt,
	}
	if err := p.reporter.Report(ctx, rec); err != nil {
		return fmt.Errorf("report failed: %w", err)
	}
	p.reported.Add(1)
	return nil
}

func (p *Pipeline) countFailure(result string) {
	switch result {
	case metrics.ResultTruncated:
		p.truncated.Add(1)
	default:
		p.otherErrors.Add(1)
	}
}

// skipCounter is implemented by sources that drop input they cannot hand
// over: pcap frames without a matching datagram, oversized UDP datagrams.
type skipCounter interface {
	Skipped() uint64
}

// Stats returns pipeline statistics. Skipped is read from the source and is
// only final once Run has returned.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Datagrams:          p.received.Load(),
		Decoded:            p.decoded.Load(),
		Reported:           p.reported.Load(),
		RateLimited:        p.rateLimited.Load(),
		ExtensionRecovered: p.recovered.Load(),
		Truncated:          p.truncated.Load(),
		OtherErrors:        p.otherErrors.Load(),
	}
	s.Failed = s.Truncated + s.OtherErrors
	if sc, ok := p.source.(skipCounter); ok {
		s.Skipped = sc.Skipped()
	}
	return s
}
