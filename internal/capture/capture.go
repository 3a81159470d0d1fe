// Package capture supplies NTP datagrams from capture files and live sockets.
package capture

import (
	"context"
	"net/netip"
	"time"
)

// Datagram is one UDP payload with its addressing.
type Datagram struct {
	Payload   []byte
	Timestamp time.Time
	Src       netip.AddrPort
	Dst       netip.AddrPort
}

// Source yields datagrams until io.EOF or context cancellation.
type Source interface {
	// Next blocks until a datagram is available. It returns io.EOF when the
	// source is exhausted or closed, and ctx.Err() when ctx is done.
	Next(ctx context.Context) (Datagram, error)
	// Name identifies the source kind in logs and metrics.
	Name() string
	Close() error
}
