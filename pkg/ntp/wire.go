package ntp

import (
	"encoding/binary"
	"fmt"
)

// reader consumes big-endian fields from a byte slice. The first short read
// is recorded in err and every later read becomes a no-op returning zero, so
// callers check err once after a run of reads.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.b) - r.off }

// need reports whether n more bytes are available, recording ErrTruncated
// against field when they are not.
func (r *reader) need(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if r.remaining() < n {
		r.err = fmt.Errorf("%s at offset %d: need %d bytes, have %d: %w",
			field, r.off, n, r.remaining(), ErrTruncated)
		return false
	}
	return true
}

func (r *reader) u8(field string) uint8 {
	if !r.need(1, field) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) i8(field string) int8 { return int8(r.u8(field)) }

func (r *reader) u16(field string) uint16 {
	if !r.need(2, field) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) short(field string) Short { return Short(r.u32(field)) }

func (r *reader) timestamp(field string) Timestamp {
	sec := r.u32(field)
	frac := r.u32(field)
	return Timestamp{Seconds: sec, Fraction: frac}
}

// take returns a copy of the next n bytes so decoded values never alias the
// caller's receive buffer.
func (r *reader) take(n int, field string) []byte {
	if !r.need(n, field) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.b[r.off:r.off+n])
	r.off += n
	return out
}

func (r *reader) rest() []byte { return r.b[r.off:] }

func appendShort(b []byte, s Short) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(s))
}

func appendTimestamp(b []byte, t Timestamp) []byte {
	b = binary.BigEndian.AppendUint32(b, t.Seconds)
	return binary.BigEndian.AppendUint32(b, t.Fraction)
}
