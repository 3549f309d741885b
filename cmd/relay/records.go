package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/cli"
)

var recordsFlags struct {
	since   string
	until   string
	session string
	outcome string
	limit   int
	format  string
	count   bool
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Query dispatch records",
	Long: `Query the dispatch records written for every message call, newest first.

--since and --until accept an RFC3339 timestamp or a duration relative to
now (e.g. 24h).

Examples:
  # Exhausted calls in the last day
  relay records --since 24h --outcome exhausted

  # Everything for one session as JSON
  relay records --session 3f2b... --limit 0 --format json

  # Count rate-limited calls this week
  relay records --since 168h --outcome rate_limited --count`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	recordsCmd.Flags().StringVar(&recordsFlags.since, "since", "", "only records at or after this time")
	recordsCmd.Flags().StringVar(&recordsFlags.until, "until", "", "only records before this time")
	recordsCmd.Flags().StringVarP(&recordsFlags.session, "session", "s", "", "only records for this session")
	recordsCmd.Flags().StringVarP(&recordsFlags.outcome, "outcome", "o", "", "only records with this outcome")
	recordsCmd.Flags().IntVarP(&recordsFlags.limit, "limit", "n", 50, "maximum records (0 for all)")
	recordsCmd.Flags().StringVarP(&recordsFlags.format, "format", "f", "text", "output format (text, json, csv)")
	recordsCmd.Flags().BoolVar(&recordsFlags.count, "count", false, "print only the number of matching records")
}

// recordTable renders dispatch records as rows.
type recordTable []*audit.Record

func (t recordTable) Header() []string {
	return []string{"TIME", "SESSION", "OUTCOME", "PROVIDER", "TRIED", "LATENCY_MS", "TOKENS", "COST", "ERROR"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.SessionID,
			string(r.Outcome),
			r.ProviderUsed,
			strings.Join(r.ProvidersTried, ","),
			strconv.FormatInt(r.LatencyMs, 10),
			strconv.Itoa(r.TokensUsed),
			strconv.FormatFloat(r.Cost, 'f', 6, 64),
			r.Error,
		}
	}
	return rows
}

// parseTime accepts RFC3339 or a duration back from now.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("duration %q must not be negative", s)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or a duration such as 24h", s)
	}
	return t, nil
}

// recordFilter builds the query from the command flags.
func recordFilter(now time.Time) (audit.Filter, error) {
	since, err := parseTime(recordsFlags.since, now)
	if err != nil {
		return audit.Filter{}, fmt.Errorf("--since: %w", err)
	}
	until, err := parseTime(recordsFlags.until, now)
	if err != nil {
		return audit.Filter{}, fmt.Errorf("--until: %w", err)
	}
	if recordsFlags.limit < 0 {
		return audit.Filter{}, fmt.Errorf("--limit must not be negative")
	}

	outcome := audit.Outcome(recordsFlags.outcome)
	if outcome != "" && !outcome.Valid() {
		return audit.Filter{}, fmt.Errorf("--outcome: unknown outcome %q", recordsFlags.outcome)
	}

	return audit.Filter{
		SessionID: recordsFlags.session,
		Outcome:   outcome,
		Since:     since,
		Until:     until,
		Limit:     recordsFlags.limit,
	}, nil
}

func runRecords(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(recordsFlags.format)
	if err != nil {
		return err
	}
	filter, err := recordFilter(time.Now())
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
	if !cfg.Audit.Enabled {
		return cli.NewConfigError("audit.enabled", "dispatch records are disabled")
	}

	store, err := openAudit(cfg)
	if err != nil {
		return cli.NewCommandError("records", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if recordsFlags.count {
		filter.Limit = 0
		n, err := store.Count(ctx, filter)
		if err != nil {
			return cli.NewCommandError("records", err)
		}
		fmt.Fprintln(out, n)
		return nil
	}

	records, err := store.Query(ctx, filter)
	if err != nil {
		return cli.NewCommandError("records", err)
	}
	return cli.NewFormatter(format).FormatTo(out, recordTable(records))
}
