package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/conversation"
)

var historyFlags struct {
	limit  int
	format string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or purge conversation history",
	Long: `Inspect or purge the stored messages of a conversation session.

Examples:
  # Show the last 20 messages of a session
  relay history list 3f2b... --limit 20

  # Export a full conversation as CSV
  relay history list 3f2b... --limit 0 --format csv > chat.csv

  # Delete a session and all its messages
  relay history purge 3f2b...`,
}

var historyListCmd = &cobra.Command{
	Use:   "list <session>",
	Short: "List the messages of a session, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryList,
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge <session>",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryPurge,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyPurgeCmd)

	historyListCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 50, "number of most recent messages (0 for all)")
	historyListCmd.Flags().StringVarP(&historyFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

// messageTable renders messages as rows.
type messageTable []conversation.Message

func (t messageTable) Header() []string {
	return []string{"ID", "TIME", "ROLE", "PROVIDER", "TOKENS", "CONTENT"}
}

func (t messageTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, m := range t {
		rows[i] = []string{
			strconv.FormatInt(m.ID, 10),
			m.CreatedAt.UTC().Format(time.RFC3339),
			string(m.Role),
			m.Provider,
			strconv.Itoa(m.TokensUsed),
			m.Content,
		}
	}
	return rows
}

// openHistoryStore opens only the conversation store.
func openHistoryStore(ctx context.Context) (*conversation.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := stderrLogging(cfg); err != nil {
		return nil, err
	}
	return openStore(ctx, cfg)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(historyFlags.format)
	if err != nil {
		return err
	}
	if historyFlags.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	ctx := cmd.Context()
	store, err := openHistoryStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	id := args[0]
	if _, err := store.GetSession(ctx, id); err != nil {
		return cli.NewCommandError("history list", err)
	}
	msgs, err := store.GetRecentMessages(ctx, id, historyFlags.limit)
	if err != nil {
		return cli.NewCommandError("history list", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), messageTable(msgs))
}

func runHistoryPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openHistoryStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	id := args[0]
	count, err := store.CountMessages(ctx, id)
	if err != nil {
		return cli.NewCommandError("history purge", err)
	}
	if err := store.DeleteHistory(ctx, id); err != nil {
		return cli.NewCommandError("history purge", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted session %s (%d messages)\n", id, count)
	return nil
}
