package cmd

import (
	"context"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"firestige.xyz/ntpwire/internal/capture"
	"firestige.xyz/ntpwire/internal/config"
	"firestige.xyz/ntpwire/internal/log"
	"firestige.xyz/ntpwire/internal/metrics"
	"firestige.xyz/ntpwire/internal/pipeline"
	"firestige.xyz/ntpwire/internal/reporter"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Decode NTP datagrams arriving on a UDP socket",
	Long: `Bind a UDP socket (capture.listen, default :123) and decode every datagram
until interrupted. Nothing is sent back to the peer.

When metrics.enabled is set, Prometheus metrics are served on metrics.listen.

Examples:
  ntpwire listen --listen 127.0.0.1:1123
  NTPWIRE_METRICS_ENABLED=true ntpwire listen --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		if listenAddr != "" {
			c.Capture.Listen = listenAddr
			if err := c.Validate(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stats, err := runListen(ctx, &c, listenFormat, cmd.OutOrStdout(), nil)
		printStats(cmd.ErrOrStderr(), stats)
		return err
	},
}

var (
	listenAddr   string
	listenFormat string
)

func init() {
	listenCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "UDP listen address (default from config)")
	listenCmd.Flags().StringVar(&listenFormat, "format", "", "output format text/json/yaml (default from config)")
}

// runListen decodes datagrams until ctx is done. ready, if set, is called
// with the bound address once the socket is open.
func runListen(ctx context.Context, c *config.Config, format string, w io.Writer, ready func(netip.AddrPort)) (pipeline.Stats, error) {
	rep, err := reporter.New(reportFormat(c, format), c.Report.Options, w)
	if err != nil {
		return pipeline.Stats{}, err
	}

	var collector *metrics.Collector
	if c.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)

		srv := metrics.NewServer(c.Metrics.Listen, c.Metrics.Path, reg)
		if err := srv.Start(ctx); err != nil {
			return pipeline.Stats{}, err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				log.GetLogger().WithError(err).Warn("metrics server stop failed")
			}
		}()
	}

	src, err := capture.ListenUDP(ctx, c.Capture)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer src.Close()
	if ready != nil {
		ready(src.LocalAddr())
	}

	p, err := pipeline.New(pipeline.Config{
		Source:   src,
		Reporter: rep,
		Metrics:  collector,
		Limiter: capture.NewSourceLimiter(capture.LimiterConfig{
			MaxPerSource: c.Capture.MaxPerSource,
			Window:       c.Capture.RateWindow,
		}),
	})
	if err != nil {
		return pipeline.Stats{}, err
	}
	return p.Run(ctx)
}
