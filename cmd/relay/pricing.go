package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/reasoning-relay/internal/pricing"
)

var flagPricingFile string

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Print the per-model price table (USD per million tokens)",
	RunE:  runPricing,
}

func init() {
	pricingCmd.Flags().StringVar(&flagPricingFile, "file", "", "TOML price overrides (defaults to pricing.file from config)")
	rootCmd.AddCommand(pricingCmd)
}

func runPricing(cmd *cobra.Command, args []string) error {
	path := flagPricingFile
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Pricing.File
	}

	table, err := pricing.LoadFile(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tINPUT\tOUTPUT\tCACHE WRITE\tCACHE READ")
	for _, e := range table.Entries() {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\n",
			e.Provider, e.Model,
			e.Pricing.InputPerMTok, e.Pricing.OutputPerMTok,
			e.Pricing.CacheWritePerMTok, e.Pricing.CacheReadPerMTok)
	}
	return w.Flush()
}
