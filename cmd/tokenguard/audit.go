package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/tokenguard/internal/domain/usage"
	"github.com/kailas-cloud/tokenguard/internal/repository/audit"
)

var auditFlags struct {
	days  int
	limit int
	path  string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report spend from the usage audit log",
	Long: `Print per-day requests, tokens and cost from the SQLite audit log,
followed by a chart of daily spend.

Examples:
  # Last 7 days
  tokenguard audit

  # Last 30 days from an explicit database
  tokenguard audit --days 30 --db data/usage.db`,
	RunE: runAuditSummary,
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent metered requests",
	RunE:  runAuditRecent,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRecentCmd)

	auditCmd.PersistentFlags().StringVar(&auditFlags.path, "db", "", "audit database path (default audit.path from config)")
	auditCmd.Flags().IntVarP(&auditFlags.days, "days", "d", 7, "number of days to report")
	auditRecentCmd.Flags().IntVarP(&auditFlags.limit, "limit", "n", 20, "number of records")
}

func openAudit(cmd *cobra.Command) (*audit.Store, error) {
	path := auditFlags.path
	if path == "" {
		cfg, _, _, err := loadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.Audit.Path
	}
	if path == "" {
		return nil, errors.New("no audit database: set audit.path or pass --db")
	}
	return audit.Open(cmd.Context(), path)
}

func runAuditSummary(cmd *cobra.Command, _ []string) error {
	if auditFlags.days <= 0 {
		return fmt.Errorf("--days must be positive, got %d", auditFlags.days)
	}
	s, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(auditFlags.days - 1))
	days, err := s.Summary(cmd.Context(), since)
	if err != nil {
		return err
	}
	return renderSummary(cmd.OutOrStdout(), fillDays(days, since, auditFlags.days))
}

func runAuditRecent(cmd *cobra.Command, _ []string) error {
	s, err := openAudit(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	recs, err := s.Recent(cmd.Context(), auditFlags.limit)
	if err != nil {
		return err
	}
	return renderRecent(cmd.OutOrStdout(), recs)
}

// fillDays returns n consecutive days starting at since, zero where nothing was recorded.
func fillDays(days []usage.DaySummary, since time.Time, n int) []usage.DaySummary {
	byDay := make(map[string]usage.DaySummary, len(days))
	for _, d := range days {
		byDay[d.Day.Format(time.DateOnly)] = d
	}
	out := make([]usage.DaySummary, n)
	for i := range out {
		day := since.AddDate(0, 0, i)
		d, ok := byDay[day.Format(time.DateOnly)]
		if !ok {
			d = usage.DaySummary{Day: day}
		}
		out[i] = d
	}
	return out
}

func renderSummary(w io.Writer, days []usage.DaySummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DAY\tREQUESTS\tINPUT\tOUTPUT\tCOST\t")

	var (
		series = make([]float64, len(days))
		total  usage.DaySummary
	)
	for i, d := range days {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t\n",
			d.Day.Format(time.DateOnly), d.Requests, d.InputTokens, d.OutputTokens, d.Cost)
		series[i] = d.Cost.Dollars()
		total.Requests += d.Requests
		total.InputTokens += d.InputTokens
		total.OutputTokens += d.OutputTokens
		total.Cost += d.Cost
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%s\t\n", total.Requests, total.InputTokens, total.OutputTokens, total.Cost)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(series) < 2 {
		return nil
	}
	_, err := fmt.Fprintf(w, "\n%s\n", asciigraph.Plot(series,
		asciigraph.Height(8),
		asciigraph.Width(60),
		asciigraph.Precision(4),
		asciigraph.Caption("daily spend (USD)"),
	))
	return err
}

func renderRecent(w io.Writer, recs []usage.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPRINCIPAL\tINPUT\tOUTPUT\tCACHE\tREGIME\tCOST")
	for _, r := range recs {
		regime := "standard"
		if r.Discounted {
			regime = "discount"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
			r.At.Format(time.RFC3339), r.Principal, r.InputTokens, r.OutputTokens, r.CacheHit, regime, r.Cost)
	}
	return tw.Flush()
}
