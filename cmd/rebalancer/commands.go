package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yieldvault/rebalancer/internal/datafetcher"
	"github.com/yieldvault/rebalancer/internal/strategy"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rebalancer",
		Short: "Yield vault rebalancer",
		Long: `rebalancer tracks token vaults placed with yield protocols and moves a vault
to a better protocol when the yearly gain clears the gas cost by the policy margin.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newAnalyzeStrategyCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newResetDBCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "evaluate [VAULT_ID]",
		Short: "Evaluate one vault and rebalance it when profitable",
		Long: `Evaluate one vault against the active policy.
With --preview the decision is computed but nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid vault id %q", args[0])
			}

			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := a.newEngine(cmd.Context(), datafetcher.NewCoinGeckoClient(a.cfg.Feeds))
			if err != nil {
				return err
			}
			evaluate := engine.Evaluate
			if preview {
				evaluate = engine.Preview
			}
			result, err := evaluate(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Compute the decision without committing it")
	return cmd
}

func newAnalyzeStrategyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-strategy [TEXT]",
		Short: "Score the AVS protocols for a free-text restaking strategy",
		Long: `Turn a free-text restaking strategy into preferences, rank the active AVS
protocols for it and print the 50/30/20 allocation.
Example: rebalancer analyze-strategy "safe and stable restaking"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			scorer, err := a.newScorer()
			if err != nil {
				return err
			}
			defer scorer.Close()

			pref := scorer.AnalyzeStrategy(cmd.Context(), strings.Join(args, " "))
			ranked, err := scorer.ScoreAVSProtocols(cmd.Context(), pref)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"preferences": pref,
				"ranked":      ranked,
				"allocations": strategy.Allocate(ranked),
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			pg, err := a.postgres()
			if err != nil {
				return err
			}
			return pg.Migrate()
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the reference tokens, protocols and demo vault into empty tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.seed(cmd.Context())
		},
	}
}

func newResetDBCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Drop every table and re-apply the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset the database without --yes")
			}
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			pg, err := a.postgres()
			if err != nil {
				return err
			}
			return pg.Reset()
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm that all data will be deleted")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
