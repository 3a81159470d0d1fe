package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/ntpwire/internal/config"
	"firestige.xyz/ntpwire/internal/reporter"
	"firestige.xyz/ntpwire/pkg/ntp"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [HEX...]",
	Short: "Decode one NTP packet",
	Long: `Decode one NTP packet given as hex on the command line, as hex on stdin,
or as raw bytes in a file.

Whitespace, colons and a leading 0x are ignored in hex input.

Examples:
  ntpwire decode 1b000000 00000000 ...
  ntpwire decode --file request.bin --format json
  echo 230000... | ntpwire decode --verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readPacketInput(args, decodeFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return runDecode(cmd.Context(), cfg, data, decodeOpts, cmd.OutOrStdout())
	},
}

type decodeOptions struct {
	format string
	verify bool
}

var (
	decodeFile string
	decodeOpts decodeOptions
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "", "read raw packet bytes from file")
	decodeCmd.Flags().StringVar(&decodeOpts.format, "format", "", "output format text/json/yaml (default from config)")
	decodeCmd.Flags().BoolVar(&decodeOpts.verify, "verify", false, "re-encode the packet and check it matches the input")
}

func runDecode(ctx context.Context, c *config.Config, data []byte, opts decodeOptions, w io.Writer) error {
	p, err := ntp.Decode(data)
	if err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	rep, err := reporter.New(reportFormat(c, opts.format), c.Report.Options, w)
	if err != nil {
		return err
	}
	if err := rep.Report(ctx, &reporter.Record{Raw: data, Packet: p}); err != nil {
		return err
	}
	if err := rep.Flush(ctx); err != nil {
		return err
	}

	if opts.verify {
		out, err := ntp.Encode(p)
		if err != nil {
			return fmt.Errorf("re-encode failed: %w", err)
		}
		if !bytes.Equal(out, data) {
			return fmt.Errorf("round trip mismatch: got %x", out)
		}
		fmt.Fprintf(w, "round trip: ok (%d bytes)\n", len(out))
	}
	return nil
}

// readPacketInput returns raw bytes from file, hex args, or hex on stdin, in
// that order of preference.
func readPacketInput(args []string, file string, stdin io.Reader) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", file, err)
		}
		return data, nil
	}
	if len(args) > 0 {
		return parseHex(strings.Join(args, ""))
	}
	in, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return parseHex(string(in))
}

// parseHex decodes hex text. Tokens may be separated by whitespace or
// colons and may each carry a 0x prefix.
func parseHex(s string) ([]byte, error) {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return true
		}
		return false
	})
	for i, tok := range tokens {
		if len(tok) >= 2 && tok[0] == '0' && (tok[1] == 'x' || tok[1] == 'X') {
			tokens[i] = tok[2:]
		}
	}
	s = strings.Join(tokens, "")
	if s == "" {
		return nil, fmt.Errorf("no packet data")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}
