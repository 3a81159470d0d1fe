package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/ntpwire/internal/capture"
	"firestige.xyz/ntpwire/internal/config"
	"firestige.xyz/ntpwire/internal/log"
	"firestige.xyz/ntpwire/internal/pipeline"
	"firestige.xyz/ntpwire/internal/reporter"
)

var readCmd = &cobra.Command{
	Use:   "read FILE",
	Short: "Decode every NTP datagram in a pcap or pcapng file",
	Long: `Decode every UDP datagram on the configured NTP ports (capture.ports,
default 123) in a pcap or pcapng capture file.

Datagrams that fail to decode are counted and logged at debug level.
A summary is printed to stderr when the file is exhausted.

Examples:
  ntpwire read ntp.pcap
  ntpwire read --ports 123,4123 --format json ntp.pcapng`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		if len(readPorts) > 0 {
			c.Capture.Ports = readPorts
			if err := c.Validate(); err != nil {
				return err
			}
		}
		_, err := runRead(cmd.Context(), &c, args[0], readFormat, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return err
	},
}

var (
	readPorts  []int
	readFormat string
)

func init() {
	readCmd.Flags().IntSliceVar(&readPorts, "ports", nil, "UDP ports to decode (default from config)")
	readCmd.Flags().StringVar(&readFormat, "format", "", "output format text/json/yaml (default from config)")
}

func runRead(ctx context.Context, c *config.Config, path, format string, w, summary io.Writer) (pipeline.Stats, error) {
	src, err := capture.OpenFile(path, c.Capture.PortSet())
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer src.Close()

	rep, err := reporter.New(reportFormat(c, format), c.Report.Options, w)
	if err != nil {
		return pipeline.Stats{}, err
	}

	p, err := pipeline.New(pipeline.Config{Source: src, Reporter: rep})
	if err != nil {
		return pipeline.Stats{}, err
	}
	stats, err := p.Run(ctx)
	fs := src.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"frames":      fs.Frames,
		"datagrams":   fs.Datagrams,
		"reassembled": fs.Reassembled,
		"skipped":     fs.Skipped,
	}).Info("capture file read")
	printStats(summary, stats)
	return stats, err
}

func printStats(w io.Writer, s pipeline.Stats) {
	fmt.Fprintf(w, "datagrams=%d decoded=%d failed=%d skipped=%d\n",
		s.Datagrams, s.Decoded, s.Failed, s.Skipped)
	if s.RateLimited > 0 {
		fmt.Fprintf(w, "rate limited: %d\n", s.RateLimited)
	}
	if s.ExtensionRecovered > 0 {
		fmt.Fprintf(w, "extension recovered: %d\n", s.ExtensionRecovered)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "failures: truncated=%d other=%d\n", s.Truncated, s.OtherErrors)
	}
}
