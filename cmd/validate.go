package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/ntpwire/internal/config"
	"firestige.xyz/ntpwire/internal/reporter"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without running anything.

Both the configuration values and the report options are checked.

Examples:
  ntpwire validate -f config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(validateConfigFile, cmd.OutOrStdout())
	},
}

var validateConfigFile string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"configuration file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, w io.Writer) error {
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	if _, err := reporter.ParseOptions(c.Report.Options); err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	ports := make([]string, 0, len(c.Capture.Ports))
	for _, p := range c.Capture.Ports {
		ports = append(ports, fmt.Sprint(p))
	}
	fmt.Fprintf(w, "VALID: log level %s, report format %s, capture ports [%s], listen %s, metrics %v\n",
		c.Log.Level,
		c.Report.Format,
		strings.Join(ports, ","),
		c.Capture.Listen,
		c.Metrics.Enabled,
	)
	return nil
}
