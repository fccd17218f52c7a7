package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budget/internal/config"
	applog "budget/internal/log"
)

// app carries what PersistentPreRunE prepares for the subcommands
type app struct {
	envFile string
	debug   bool

	cfg    *config.Config
	logger *applog.Logger
}

// NewRootCmd builds the budget command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "budget",
		Short: "Track income and expenses with running balances",
		Long: `budget records income and expense transactions, keeps wallet,
income and expense totals, and persists everything in SQLite.

Example:
  budget add 100 "Paycheck" --kind Income
  budget add 30 "Groceries"
  budget balance
  budget serve`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadEnvFile(a.envFile); err != nil {
				return err
			}
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = SetupLogger(cfg, a.debug, cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env", "", "env file to load (default is .env if present)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newBalanceCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
	)
	return root
}

// Execute runs the root command with signal-aware context.
func Execute() error {
	ctx, cancel := GracefulShutdown(context.Background(), applog.New(applog.Config{
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	}))
	defer cancel()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// withService opens the ledger for the duration of fn
func (a *app) withService(ctx context.Context, fn func(svc serviceHandle) error) error {
	svc, err := OpenService(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			a.logger.Warn("Close failed", applog.FieldError, err)
		}
	}()
	return fn(svc)
}
