package reporter

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlReporter writes one YAML document per packet.
type yamlReporter struct {
	w    io.Writer
	opts Options
}

func (r *yamlReporter) Report(ctx context.Context, rec *Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(newPacketView(rec, r.opts)); err != nil {
		return fmt.Errorf("yaml encode failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("yaml encode failed: %w", err)
	}

	_, err := r.w.Write(buf.Bytes())
	return err
}

// Flush is a no-op; every document is written in full by Report.
func (r *yamlReporter) Flush(ctx context.Context) error {
	return nil
}
