package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/ntpwire/internal/config"
	"firestige.xyz/ntpwire/internal/log"
)

// UDPSource receives datagrams on a bound UDP socket.
type UDPSource struct {
	conn   *net.UDPConn
	local  netip.AddrPort
	buf    []byte // one byte over max so oversized datagrams are detectable
	max    int
	logger log.Logger

	oversized atomic.Uint64

	// exactly one of p4 and p6 is set
	p4 *ipv4.PacketConn
	p6 *ipv6.PacketConn
}

// ListenUDP binds cfg.Listen. Destination addresses are taken from packet
// control messages when the platform supports them, and from the bound
// address otherwise.
func ListenUDP(ctx context.Context, cfg config.CaptureConfig) (*UDPSource, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	conn := pc.(*net.UDPConn)

	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set read buffer: %w", err)
		}
	}

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	s := &UDPSource{
		conn:  conn,
		local: netip.AddrPortFrom(local.Addr().Unmap(), local.Port()),
		buf:   make([]byte, cfg.MaxDatagram+1),
		max:   cfg.MaxDatagram,
	}

	logger := log.GetLogger().WithField("listen", s.local.String())
	s.logger = logger
	if s.local.Addr().Is4() {
		s.p4 = ipv4.NewPacketConn(conn)
		if err := s.p4.SetControlMessage(ipv4.FlagDst, true); err != nil {
			logger.WithError(err).Warn("destination address reporting unavailable")
		}
	} else {
		s.p6 = ipv6.NewPacketConn(conn)
		if err := s.p6.SetControlMessage(ipv6.FlagDst, true); err != nil {
			logger.WithError(err).Warn("destination address reporting unavailable")
		}
	}
	logger.Info("listening for NTP datagrams")
	return s, nil
}

func (s *UDPSource) Name() string { return "udp" }

// LocalAddr returns the bound address.
func (s *UDPSource) LocalAddr() netip.AddrPort { return s.local }

// Next blocks for the next datagram. Datagrams longer than the configured
// maximum are dropped and counted in Skipped.
func (s *UDPSource) Next(ctx context.Context) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			// the deadline may already be set; clear it for the next read
			s.conn.SetReadDeadline(time.Time{})
		}
	}()

	for {
		n, src, dst, err := s.read()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Datagram{}, ctxErr
			}
			if errors.Is(err, net.ErrClosed) {
				return Datagram{}, io.EOF
			}
			return Datagram{}, fmt.Errorf("failed to read datagram: %w", err)
		}
		if n > s.max {
			s.oversized.Add(1)
			if s.logger.IsDebugEnabled() {
				s.logger.WithField("src", src.String()).WithField("max", s.max).
					Debug("datagram exceeds capture.max_datagram, dropped")
			}
			continue
		}

		d := Datagram{
			Payload:   append([]byte(nil), s.buf[:n]...),
			Timestamp: time.Now(),
			Dst:       s.local,
		}
		if ua, ok := src.(*net.UDPAddr); ok {
			ap := ua.AddrPort()
			d.Src = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
		}
		if addr, ok := netip.AddrFromSlice(dst); ok {
			d.Dst = netip.AddrPortFrom(addr.Unmap(), s.local.Port())
		}
		return d, nil
	}
}

// read receives one datagram into s.buf along with its destination address
// when the platform reports it.
func (s *UDPSource) read() (n int, src net.Addr, dst net.IP, err error) {
	if s.p4 != nil {
		var cm *ipv4.ControlMessage
		n, cm, src, err = s.p4.ReadFrom(s.buf)
		if cm != nil {
			dst = cm.Dst
		}
		return n, src, dst, err
	}
	var cm *ipv6.ControlMessage
	n, cm, src, err = s.p6.ReadFrom(s.buf)
	if cm != nil {
		dst = cm.Dst
	}
	return n, src, dst, err
}

// Skipped returns the number of datagrams dropped for exceeding the maximum
// size. It is safe to call while Next is running.
func (s *UDPSource) Skipped() uint64 { return s.oversized.Load() }

func (s *UDPSource) Close() error {
	return s.conn.Close()
}
