package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	opts := simOptions{}

	rootCmd := &cobra.Command{
		Use:   "cartsim",
		Short: "Drive concurrent shoppers against the storefront cart API and verify cart invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runSimulation(cmd.Context(), opts)
			if err != nil {
				return err
			}
			report.Print(cmd.OutOrStdout())
			if len(report.Violations) > 0 {
				return fmt.Errorf("%d cart invariant violations", len(report.Violations))
			}
			return nil
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.BaseURL, "base-url", "u", "http://localhost:8080", "Storefront HTTP address")
	flags.IntVarP(&opts.Shoppers, "shoppers", "s", 50, "Number of shopper sessions")
	flags.IntVarP(&opts.Ops, "ops", "n", 40, "Cart operations per shopper")
	flags.IntVarP(&opts.Parallel, "parallel", "p", 4, "Concurrent requests per shopper")
	flags.IntVarP(&opts.Concurrency, "concurrency", "c", 16, "Shoppers running at once")
	flags.StringSliceVarP(&opts.Variants, "variants", "v", nil, "Variant ids to shop for (required)")
	flags.Uint64Var(&opts.Seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	flags.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Per-request timeout")
	_ = rootCmd.MarkFlagRequired("variants")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
