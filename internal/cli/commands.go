package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"budget/internal/amqp"
	"budget/internal/core"
	apphttp "budget/internal/http"
	applog "budget/internal/log"
	"budget/internal/services"
)

// serviceHandle is the part of the service the commands use
type serviceHandle interface {
	Record(ctx context.Context, amount, description, kind string) (core.Transaction, core.Balances, error)
	Balances() (core.Balances, error)
	Snapshot() ([]core.Transaction, core.Balances, error)
	Ready() bool
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger

			svc, err := OpenService(ctx, a.cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					logger.Error("Service close error", applog.FieldError, err)
				}
			}()

			srv := apphttp.NewServer(a.cfg.Addr(), svc,
				apphttp.WithLogger(logger.WithComponent(applog.ComponentHTTP)),
				apphttp.WithRateLimit(a.cfg.RateLimitPerMinute))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("Starting budget server",
					"port", a.cfg.Port,
					"backend", a.cfg.DataBackend,
					"amqp_enabled", a.cfg.AMQPURL != "")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				logger.Info("Server stopped gracefully")
				return nil
			})
			return g.Wait()
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "add <amount> [description...]",
		Short: "Record one income or expense",
		Example: `  budget add 100 Paycheck --kind Income
  budget add 12,50 "Lunch with Ana"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.Join(args[1:], " ")
			return a.withService(cmd.Context(), func(svc serviceHandle) error {
				tx, balances, err := svc.Record(cmd.Context(), args[0], description, kind)
				if err != nil {
					a.logger.Debug("Record failed", applog.FieldError, err)
					return errors.New(services.UserMessage(err))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recorded #%d %s\n", tx.ID, tx)
				printBalances(cmd, balances)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", core.Expense.String(), "transaction type: Income or Expense")
	return cmd
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show wallet, income and expense totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc serviceHandle) error {
				balances, err := svc.Balances()
				if err != nil {
					return err
				}
				printBalances(cmd, balances)
				return nil
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded transactions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc serviceHandle) error {
				history, _, err := svc.Snapshot()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					type row struct {
						ID          int64  `json:"id"`
						Kind        string `json:"kind"`
						Amount      string `json:"amount"`
						Description string `json:"description"`
					}
					rows := make([]row, 0, len(history))
					for _, tx := range history {
						rows = append(rows, row{tx.ID, tx.Kind.String(), tx.Amount.String(), tx.Description})
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(rows)
				}
				if len(history) == 0 {
					fmt.Fprintln(out, "No transactions yet.")
					return nil
				}
				for _, tx := range history {
					fmt.Fprintf(out, "#%d %s\n", tx.ID, tx)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print transaction events from the message broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}
			ctx := cmd.Context()
			logger := a.logger.WithComponent(applog.ComponentAMQP)

			client, err := amqp.NewClientWithRetry(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, attempts)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			err = client.ConsumeTransactionRecorded(ctx, func(msg *amqp.TransactionRecordedMessage) error {
				logger.Debug("Transaction event received", applog.FieldTransactionID, msg.ID)
				_, err := fmt.Fprintln(out, formatEvent(msg))
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 5, "connection attempts before giving up")
	return cmd
}

func formatEvent(msg *amqp.TransactionRecordedMessage) string {
	return fmt.Sprintf("%s #%d %s %s %q (wallet %s)",
		msg.Timestamp.Local().Format(time.DateTime), msg.ID, msg.Kind, msg.Amount, msg.Description, msg.Wallet)
}

func printBalances(cmd *cobra.Command, b core.Balances) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wallet:   %s\n", core.FormatAmount(b.Wallet))
	fmt.Fprintf(out, "Income:   %s\n", core.FormatAmount(b.Income))
	fmt.Fprintf(out, "Expenses: %s\n", core.FormatAmount(b.Expense))
}
