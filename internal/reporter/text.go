package reporter

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
)

// textReporter writes one block per packet: a summary line followed by the
// packet labels sorted by key.
type textReporter struct {
	w    io.Writer
	opts Options
}

func (r *textReporter) Report(ctx context.Context, rec *Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	p := rec.Packet

	var buf bytes.Buffer
	if !rec.Timestamp.IsZero() {
		fmt.Fprintf(&buf, "[%s] ", rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	if rec.Src.IsValid() || rec.Dst.IsValid() {
		fmt.Fprintf(&buf, "%s -> %s ", rec.Src, rec.Dst)
	}
	fmt.Fprintf(&buf, "NTPv%d %s len=%d\n", p.Version, p.Mode, p.Len())

	labels := PacketLabels(p, r.opts.pivotFor(rec))
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "  %s=%s\n", k, labels[k])
	}

	if code, ok := KissCode(p); ok {
		if meaning := KissMeaning(code); meaning != "" {
			fmt.Fprintf(&buf, "  kiss-o'-death %s: %s\n", code, meaning)
		}
	}
	for i, ext := range p.Extensions {
		fmt.Fprintf(&buf, "  ext[%d] type=0x%04x length=%d payload=%s\n", i, ext.Type, ext.Length, hex.EncodeToString(ext.Payload))
	}
	if p.MAC != nil && len(p.MAC.Digest) > 0 {
		fmt.Fprintf(&buf, "  mac digest=%s\n", hex.EncodeToString(p.MAC.Digest))
	}
	if r.opts.IncludeRaw {
		fmt.Fprintf(&buf, "  raw=%s\n", hex.EncodeToString(rec.Raw))
	}

	_, err := r.w.Write(buf.Bytes())
	return err
}

// Flush is a no-op; every record is written in full by Report.
func (r *textReporter) Flush(ctx context.Context) error {
	return nil
}
