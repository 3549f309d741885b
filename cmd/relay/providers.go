package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/routing"
)

var providersFlags struct {
	probe  bool
	format string
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers",
	Long: `List the enabled providers in priority order with their circuit state.

Breaker state is per process, so a fresh invocation reports every circuit
as CLOSED. Use --probe to run a health check against each provider.

Examples:
  relay providers
  relay providers --probe
  relay providers --format json`,
	Args: cobra.NoArgs,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)

	providersCmd.Flags().BoolVarP(&providersFlags.probe, "probe", "p", false, "run a health check against each provider")
	providersCmd.Flags().StringVarP(&providersFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

// providerTable renders registry snapshots as rows.
type providerTable []routing.ProviderRecord

func (t providerTable) Header() []string {
	return []string{"NAME", "KIND", "PRIORITY", "CIRCUIT", "HEALTH", "CHECKED"}
}

func (t providerTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, p := range t {
		health, checked := "unknown", "-"
		if p.LastHealthCheckAt != nil {
			health = "unhealthy"
			if p.LastHealthOK {
				health = "healthy"
			}
			checked = p.LastHealthCheckAt.UTC().Format(time.RFC3339)
		}
		if p.Maintenance {
			health = "maintenance"
		}
		rows[i] = []string{p.Name, p.Kind, strconv.Itoa(p.Priority), p.CircuitState, health, checked}
	}
	return rows
}

func runProviders(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(providersFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := stderrLogging(cfg); err != nil {
		return err
	}

	reg, err := openRegistry(cfg, nil)
	if err != nil {
		return cli.NewCommandError("providers", err)
	}
	defer reg.Close()

	if providersFlags.probe {
		ctx, stop := cli.SetupSignalHandler()
		defer stop()

		entries := reg.Entries()
		progress := cli.NewProgressReporter(os.Stderr, "probed")
		progress.Start(int64(len(entries)))

		g, gctx := errgroup.WithContext(ctx)
		for _, e := range entries {
			g.Go(func() error {
				reg.Health().Healthy(gctx, e.Provider)
				progress.Increment()
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return cli.NewCommandError("providers", err)
		}
		progress.Finish()
	}

	snap := reg.Snapshot()
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), providerTable(snap)); err != nil {
		return err
	}

	if providersFlags.probe && format == cli.FormatText {
		ready := "no"
		if reg.Ready() {
			ready = "yes"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nReady: %s\n", ready)
	}
	return nil
}
