package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
)

var pricingFlags struct {
	at string
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Show the rates in effect at a moment",
	Long: `Print the per-million-token rates the configured schedule applies at the
given instant (default now), and whether the discount window is active.

Examples:
  tokenguard pricing
  tokenguard pricing --at 2026-06-01T17:00:00Z`,
	RunE: runPricing,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.Flags().StringVar(&pricingFlags.at, "at", "", "RFC 3339 instant (default now)")
}

func runPricing(cmd *cobra.Command, _ []string) error {
	at := time.Now().UTC()
	if pricingFlags.at != "" {
		t, err := time.Parse(time.RFC3339, pricingFlags.at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		at = t
	}

	cfg, _, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	schedule, err := cfg.Pricing.Schedule()
	if err != nil {
		return err
	}
	return renderRates(cmd.OutOrStdout(), pricing.NewOracle(schedule), at)
}

func renderRates(w io.Writer, o *pricing.Oracle, at time.Time) error {
	r := o.RatesAt(at)
	regime := "standard"
	if r.Discounted {
		regime = "discount"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "At:\t%s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "Regime:\t%s (window %s)\n", regime, o.Schedule().Discount)
	fmt.Fprintf(tw, "Input, cache hit:\t$%.4f / 1M\n", r.CacheHitInput.PerMillion())
	fmt.Fprintf(tw, "Input, cache miss:\t$%.4f / 1M\n", r.CacheMissInput.PerMillion())
	fmt.Fprintf(tw, "Output:\t$%.4f / 1M\n", r.Output.PerMillion())
	return tw.Flush()
}
