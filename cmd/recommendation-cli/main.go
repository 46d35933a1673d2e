// Package main provides the Recommendation CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	cfgFile    string
	outputJSON bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "recommendation-cli",
		Short: "Recommendation CLI for keyword inspection, recommendations and cache administration",
		Long: `Recommendation CLI runs the broadcast-to-mall recommendation pipeline locally.

Use this tool to:
- Inspect the keyword views of a product name
- Recommend mall products for a broadcast product
- Warm or invalidate the recommendation cache
- Apply the catalog schema and build the embedding index

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.cfg, err = config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level := "warn"
			if c.verbose {
				level = c.cfg.Observability.LogLevel
			}
			format := "console"
			if c.outputJSON {
				format = "json"
			}
			c.logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      format,
				Output:      cmd.ErrOrStderr(),
				ServiceName: "recommendation-cli",
			})
			c.ui = NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), c.outputJSON)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.newKeywordsCmd())
	root.AddCommand(c.newRecommendCmd())
	root.AddCommand(c.newWarmCmd())
	root.AddCommand(c.newInvalidateCmd())
	root.AddCommand(c.newMigrateCmd())
	root.AddCommand(c.newIndexCmd())
	return root
}

// openApp builds the application and, for an in-process vector store, indexes the
// catalog first.
func (c *cli) openApp(ctx context.Context, index bool) (*app.App, error) {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	if index && a.NeedsIndex() {
		if _, err := c.indexCatalog(ctx, a, 0); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func main() {
	_ = godotenv.Load() // .env is optional

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
