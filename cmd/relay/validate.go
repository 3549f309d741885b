package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file with environment overrides and check it.

Exits with status 2 and lists every invalid field when the file is not valid.

Examples:
  relay validate
  relay validate --config /etc/relay/relay.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", cfgFile)

	enabled := cfg.EnabledProviders()
	fmt.Fprintf(out, "  Providers: %d enabled, %d disabled\n", len(enabled), len(cfg.Providers)-len(enabled))
	if verbose {
		for _, p := range enabled {
			fmt.Fprintf(out, "    - %s (%s, priority %d, model %s)\n", p.Name, p.Kind, p.Priority, p.Model)
		}
	}
	fmt.Fprintf(out, "  Conversation backend: %s\n", cfg.Conversation.Backend)
	fmt.Fprintf(out, "  Rate limit: %d per %s\n", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if cfg.Audit.Enabled {
		fmt.Fprintf(out, "  Dispatch records: %s, kept %d days\n", cfg.Audit.Backend, cfg.Audit.Retention.Days)
	} else {
		fmt.Fprintln(out, "  Dispatch records: disabled")
	}
	if cfg.Server.TLS.Enabled {
		fmt.Fprintf(out, "  TLS: enabled (min %s, cert %s)\n", cfg.Server.TLS.MinVersion, cfg.Server.TLS.CertFile)
	}
	return nil
}
