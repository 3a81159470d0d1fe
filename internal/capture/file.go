package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/ip4defrag"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	pcapngMagic = 0x0A0D0D0A

	// fragmentTimeout bounds how long, in capture time, an incomplete IPv4
	// datagram is kept waiting for its remaining fragments.
	fragmentTimeout = 60 * time.Second
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// FileStats counts what a FileSource has read.
type FileStats struct {
	Frames      uint64 // link-layer frames read
	Datagrams   uint64 // UDP payloads returned
	Skipped     uint64 // frames that yielded no datagram
	Reassembled uint64 // datagrams rebuilt from IPv4 fragments
}

// FileSource reads UDP datagrams from a pcap or pcapng capture.
type FileSource struct {
	closer io.Closer
	reader packetReader
	ports  map[uint16]bool

	eth     layers.Ethernet
	sll     layers.LinuxSLL
	loop    layers.Loopback
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	ip6     layers.IPv6
	udp     layers.UDP
	parsers map[gopacket.LayerType]*gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	stats   FileStats

	defrag      *ip4defrag.IPv4Defragmenter
	lastDiscard time.Time
}

// OpenFile opens a capture file. Only UDP datagrams with a source or
// destination port in ports are returned; an empty set accepts every port.
func OpenFile(path string, ports map[uint16]bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	s, err := NewFileSource(f, ports)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	s.closer = f
	return s, nil
}

// NewFileSource reads a capture from r. The format is detected from the
// leading magic number.
func NewFileSource(r io.Reader, ports map[uint16]bool) (*FileSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("capture header: %w", err)
	}

	var reader packetReader
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		reader, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		reader, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}

	s := &FileSource{
		reader:  reader,
		ports:   ports,
		parsers: make(map[gopacket.LayerType]*gopacket.DecodingLayerParser),
		decoded: make([]gopacket.LayerType, 0, 8),
		defrag:  ip4defrag.NewIPv4Defragmenter(),
	}
	if _, ok := s.firstLayer(nil); !ok {
		return nil, fmt.Errorf("unsupported link type %s", reader.LinkType())
	}
	return s, nil
}

func (s *FileSource) Name() string { return "file" }

// Next returns the next matching datagram. Frames that cannot carry one are
// counted in Stats and skipped.
func (s *FileSource) Next(ctx context.Context) (Datagram, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Datagram{}, err
		}
		data, ci, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Datagram{}, io.EOF
		}
		if err != nil {
			return Datagram{}, fmt.Errorf("failed to read packet: %w", err)
		}
		s.stats.Frames++

		d, ok := s.decode(data, ci.Timestamp)
		if !ok {
			s.stats.Skipped++
			continue
		}
		d.Timestamp = ci.Timestamp
		s.stats.Datagrams++
		return d, nil
	}
}

func (s *FileSource) decode(data []byte, ts time.Time) (Datagram, bool) {
	first, ok := s.firstLayer(data)
	if !ok {
		return Datagram{}, false
	}
	parser := s.parser(first)
	// unsupported layers above UDP end decoding without an error
	if err := parser.DecodeLayers(data, &s.decoded); err != nil {
		return Datagram{}, false
	}

	var src, dst netip.Addr
	var haveIP, haveUDP bool
	for _, lt := range s.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			if s.ip4.Flags&layers.IPv4MoreFragments != 0 || s.ip4.FragOffset != 0 {
				return s.reassemble(ts)
			}
			src, dst, haveIP = toAddr(s.ip4.SrcIP), toAddr(s.ip4.DstIP), true
		case layers.LayerTypeIPv6:
			src, dst, haveIP = toAddr(s.ip6.SrcIP), toAddr(s.ip6.DstIP), true
		case layers.LayerTypeUDP:
			haveUDP = true
		}
	}
	if !haveIP || !haveUDP {
		return Datagram{}, false
	}
	return s.datagram(src, dst, &s.udp)
}

// reassemble hands the current IPv4 fragment to the defragmenter and decodes
// the UDP datagram once the last missing fragment arrives.
func (s *FileSource) reassemble(ts time.Time) (Datagram, bool) {
	if ts.Sub(s.lastDiscard) >= fragmentTimeout {
		s.defrag.DiscardOlderThan(ts.Add(-fragmentTimeout))
		s.lastDiscard = ts
	}

	// the defragmenter keeps fragments by pointer, s.ip4 is reused
	frag := s.ip4
	frag.Payload = append([]byte(nil), s.ip4.Payload...)
	frag.SrcIP = append(net.IP(nil), s.ip4.SrcIP...)
	frag.DstIP = append(net.IP(nil), s.ip4.DstIP...)

	whole, err := s.defrag.DefragIPv4WithTimestamp(&frag, ts)
	if err != nil || whole == nil || whole.Protocol != layers.IPProtocolUDP {
		return Datagram{}, false
	}
	var udp layers.UDP
	if err := udp.DecodeFromBytes(whole.Payload, gopacket.NilDecodeFeedback); err != nil {
		return Datagram{}, false
	}
	d, ok := s.datagram(toAddr(whole.SrcIP), toAddr(whole.DstIP), &udp)
	if ok {
		s.stats.Reassembled++
	}
	return d, ok
}

// datagram applies the port filter to a decoded UDP layer.
func (s *FileSource) datagram(src, dst netip.Addr, udp *layers.UDP) (Datagram, bool) {
	sp, dp := uint16(udp.SrcPort), uint16(udp.DstPort)
	if len(s.ports) > 0 && !s.ports[sp] && !s.ports[dp] {
		return Datagram{}, false
	}
	return Datagram{
		Payload: udp.Payload,
		Src:     netip.AddrPortFrom(src, sp),
		Dst:     netip.AddrPortFrom(dst, dp),
	}, true
}

// firstLayer picks the outermost layer for the capture's link type. Raw IP
// captures are dispatched on the IP version nibble.
func (s *FileSource) firstLayer(data []byte) (gopacket.LayerType, bool) {
	switch s.reader.LinkType() {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, true
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL, true
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return layers.LayerTypeLoopback, true
	case layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4, true
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6, true
	case layers.LinkTypeRaw:
		if data == nil {
			return layers.LayerTypeIPv4, true
		}
		switch {
		case len(data) == 0:
			return 0, false
		case data[0]>>4 == 4:
			return layers.LayerTypeIPv4, true
		case data[0]>>4 == 6:
			return layers.LayerTypeIPv6, true
		}
	}
	return 0, false
}

func (s *FileSource) parser(first gopacket.LayerType) *gopacket.DecodingLayerParser {
	if p, ok := s.parsers[first]; ok {
		return p
	}
	p := gopacket.NewDecodingLayerParser(first,
		&s.eth, &s.sll, &s.loop, &s.dot1q, &s.ip4, &s.ip6, &s.udp)
	p.IgnoreUnsupported = true
	s.parsers[first] = p
	return p
}

// Stats returns counters for the frames read so far.
func (s *FileSource) Stats() FileStats { return s.stats }

// Skipped returns the number of frames that yielded no datagram.
func (s *FileSource) Skipped() uint64 { return s.stats.Skipped }

func (s *FileSource) Close() error {
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

func toAddr(ip net.IP) netip.Addr {
	addr, _ := netip.AddrFromSlice(ip)
	return addr.Unmap()
}
