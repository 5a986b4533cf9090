package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/reasoning-relay/internal/usage/sqlite"
)

var (
	flagUsageDSN   string
	flagUsageLimit int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarize turns recorded in the SQLite usage ledger",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&flagUsageDSN, "dsn", "", "Ledger DSN (defaults to usage.dsn from config)")
	usageCmd.Flags().IntVarP(&flagUsageLimit, "limit", "l", 20, "Number of recent turns to list")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	dsn := flagUsageDSN
	if dsn == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dsn = cfg.Usage.DSN
	}

	store, err := sqlite.New(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	totals, err := store.Totals(ctx)
	if err != nil {
		return err
	}
	records, err := store.List(ctx, flagUsageLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "turns: %d (failed %d)  prompt tokens: %d  completion tokens: %d  cost: $%.4f\n\n",
		totals.Turns, totals.FailedTurns, totals.PromptTokens, totals.CompletionTokens, totals.CostUSD)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tMODE\tSTREAM\tPROMPT\tCOMPLETION\tCOST\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t$%.4f\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Status, r.Mode, r.Streaming,
			r.Reasoning.InputTokens+r.Synthesis.InputTokens,
			r.Reasoning.OutputTokens+r.Synthesis.OutputTokens,
			r.Cost.Total, r.ErrorType)
	}
	return w.Flush()
}
