package capture

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// SourceLimiter caps the number of datagrams accepted from one source
// address per fixed window. Counts reset when the window expires.
type SourceLimiter struct {
	mu           sync.Mutex
	current      map[netip.Addr]*atomic.Int64
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int64

	rejected atomic.Int64
}

// LimiterConfig configures per-source rate limiting.
type LimiterConfig struct {
	MaxPerSource int           // datagrams per source per window, 0 disables
	Window       time.Duration // default 10s
}

// NewSourceLimiter returns nil when cfg.MaxPerSource <= 0. A nil limiter
// allows everything.
func NewSourceLimiter(cfg LimiterConfig) *SourceLimiter {
	if cfg.MaxPerSource <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &SourceLimiter{
		current:      make(map[netip.Addr]*atomic.Int64),
		windowStart:  time.Now(),
		windowSize:   cfg.Window,
		maxPerWindow: int64(cfg.MaxPerSource),
	}
}

// Allow reports whether a datagram from src arriving at now is within the
// limit.
func (l *SourceLimiter) Allow(src netip.Addr, now time.Time) bool {
	if l == nil {
		return true
	}
	src = src.Unmap()

	l.mu.Lock()
	if now.Sub(l.windowStart) >= l.windowSize {
		l.current = make(map[netip.Addr]*atomic.Int64)
		l.windowStart = now
	}
	counter, ok := l.current[src]
	if !ok {
		counter = &atomic.Int64{}
		l.current[src] = counter
	}
	l.mu.Unlock()

	if counter.Add(1) > l.maxPerWindow {
		l.rejected.Add(1)
		return false
	}
	return true
}

// Rejected returns the total number of rejected datagrams.
func (l *SourceLimiter) Rejected() int64 {
	if l == nil {
		return 0
	}
	return l.rejected.Load()
}

// ActiveSources returns the number of distinct sources in the current window.
func (l *SourceLimiter) ActiveSources() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.current)
}
