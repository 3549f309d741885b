package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/scheduler"
	"mercator-hq/relay/pkg/server"
)

var serveFlags struct {
	listenAddress string
	noWatch       bool
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Relay HTTP server",
	Long: `Start the Relay HTTP server with the specified configuration.

The server exposes the session and message API, health probes and
Prometheus metrics. Background jobs sweep expired rate limit windows and
prune old dispatch records. Pricing, token, rate limit and dispatch
settings are reloaded when the configuration file changes.

Examples:
  # Start with default config
  relay serve

  # Start with custom config
  relay serve --config /etc/relay/relay.yaml

  # Override listen address
  relay serve --listen 0.0.0.0:8080

  # Validate config and build every component without serving
  relay serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.noWatch, "no-watch", false, "do not reload the config file on change")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "build every component, then exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if _, err := setupLogging(cfg, os.Stdout); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Relay v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()
	fmt.Fprintf(out, "✓ Providers initialized (%d providers)\n", len(a.registry.Names()))
	fmt.Fprintf(out, "✓ Conversation store ready (%s)\n", cfg.Conversation.Backend)
	if a.recorder != nil {
		fmt.Fprintf(out, "✓ Dispatch records enabled (%s)\n", cfg.Audit.Backend)
	}

	if serveFlags.dryRun {
		fmt.Fprintln(out, "✓ Dry run complete")
		return nil
	}

	sched, err := newScheduler(a)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	if !serveFlags.noWatch {
		watcher, err := config.NewWatcher(cfgFile, 0, func(next *config.Config) {
			if err := resolveSecrets(ctx, next); err != nil {
				slog.Error("configuration reload rejected", "error", err)
				return
			}
			a.apply(next)
		})
		if err != nil {
			slog.Warn("configuration reload disabled", "error", err)
		} else {
			defer watcher.Close()
			go func() {
				if err := watcher.Run(ctx); err != nil {
					slog.Error("configuration watcher stopped", "error", err)
				}
			}()
		}
	}

	srv, err := server.New(cfg.Server, server.Dependencies{
		Dispatcher:  a.dispatcher,
		Store:       a.store,
		Registry:    a.registry,
		Metrics:     metricsHandler(a),
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Tracer:      a.tracer.Tracer(),
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	printEndpoints(out, ln.Addr().String(), cfg)

	if err := srv.Serve(ctx, ln); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// newScheduler registers the background maintenance jobs.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New()

	err := sched.AddJob("ratelimit-sweep", a.cfg.RateLimit.SweepSchedule, func(ctx context.Context) {
		if n := a.limiter.Sweep(); n > 0 {
			slog.Debug("expired rate limit windows removed", "count", n)
		}
	})
	if err != nil {
		return nil, err
	}

	if a.audit != nil && a.cfg.Audit.Retention.PruneSchedule != "" {
		pruner := audit.NewPruner(a.audit, a.cfg.Audit.Retention.Days)
		err := sched.AddJob("audit-prune", a.cfg.Audit.Retention.PruneSchedule, func(ctx context.Context) {
			if _, err := pruner.Prune(ctx); err != nil {
				slog.Error("dispatch record pruning failed", "error", err)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// metricsHandler returns nil when metrics are disabled so that no route is
// registered.
func metricsHandler(a *app) http.Handler {
	if !a.metrics.Enabled() {
		return nil
	}
	return a.metrics.Handler()
}

func printEndpoints(w io.Writer, addr string, cfg *config.Config) {
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	base := scheme + "://" + addr

	fmt.Fprintln(w)
	fmt.Fprintf(w, "✓ Server listening on %s\n", addr)
	fmt.Fprintf(w, "✓ Health endpoints: %s/healthz, %s/readyz\n", base, base)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(w, "✓ Metrics endpoint: %s%s\n", base, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")
}
