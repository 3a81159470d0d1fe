// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/ntpwire/internal/config"
	"firestige.xyz/ntpwire/internal/log"
)

// Version is the build version, set with -ldflags "-X firestige.xyz/ntpwire/cmd.Version=...".
var Version = "0.1.0"

var (
	// Global flags
	configFile string
	logLevel   string

	// cfg is loaded by PersistentPreRunE before any subcommand runs
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ntpwire",
	Short: "ntpwire - NTP packet decoder and encoder",
	Long: `ntpwire decodes and encodes NTP packets (RFC 5905): the 48-byte header,
NTPv4 extension fields (RFC 7822) and the optional MAC trailer.

Packets can be decoded from hex, raw files, pcap/pcapng captures or a live
UDP socket, and rendered as text, JSON or YAML.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and NTPWIRE_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (trace/debug/info/warn/error)")

	// Add subcommands
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the configuration and installs the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = strings.ToLower(logLevel)
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if err := log.Init(c.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = c
	return nil
}

// reportFormat returns the flag value if set, otherwise the configured one.
func reportFormat(c *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return c.Report.Format
}
