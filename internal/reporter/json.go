package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// jsonReporter writes one JSON object per line.
type jsonReporter struct {
	enc  *json.Encoder
	opts Options
}

func newJSONReporter(w io.Writer, opts Options) *jsonReporter {
	return &jsonReporter{enc: json.NewEncoder(w), opts: opts}
}

func (r *jsonReporter) Report(ctx context.Context, rec *Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	if err := r.enc.Encode(newPacketView(rec, r.opts)); err != nil {
		return fmt.Errorf("json encode failed: %w", err)
	}
	return nil
}

// Flush is a no-op; json.Encoder writes each line immediately.
func (r *jsonReporter) Flush(ctx context.Context) error {
	return nil
}
