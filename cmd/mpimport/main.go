// Command mpimport pulls orders, finance operations and products from the
// Ozon and Wildberries seller APIs into the PostgreSQL warehouse.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/mpimport/internal/app"
	"github.com/alanyoungcy/mpimport/internal/config"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

type importOptions struct {
	configPath       string
	source           string
	client           string
	dateFrom         string
	dateTo           string
	lastNDays        int
	ordersOnly       bool
	transactionsOnly bool
	productsOnly     bool
}

func (o importOptions) scope() pipeline.Scope {
	switch {
	case o.ordersOnly:
		return pipeline.ScopeOrders
	case o.transactionsOnly:
		return pipeline.ScopeTransactions
	case o.productsOnly:
		return pipeline.ScopeProducts
	default:
		return pipeline.ScopeFacts
	}
}

func newRootCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:           "mpimport",
		Short:         "Import marketplace orders and finance data into the warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "mpimport.toml", "path to configuration file")
	f.StringVar(&opts.source, "source", "", "marketplace to import: ozon, wb or all (required)")
	f.StringVar(&opts.client, "client", "", "client account name (default: import.client_name)")
	f.StringVar(&opts.dateFrom, "date-from", "", "first day to import, YYYY-MM-DD")
	f.StringVar(&opts.dateTo, "date-to", "", "last day to import, YYYY-MM-DD")
	f.IntVar(&opts.lastNDays, "last-n-days", 0, "import the last N days ending today")
	f.BoolVar(&opts.ordersOnly, "orders-only", false, "import orders only")
	f.BoolVar(&opts.transactionsOnly, "transactions-only", false, "import finance transactions only")
	f.BoolVar(&opts.productsOnly, "products-only", false, "sync dim_products only")

	_ = cmd.MarkFlagRequired("source")
	cmd.MarkFlagsMutuallyExclusive("orders-only", "transactions-only", "products-only")
	cmd.MarkFlagsMutuallyExclusive("last-n-days", "date-from")
	cmd.MarkFlagsMutuallyExclusive("last-n-days", "date-to")
	cmd.MarkFlagsRequiredTogether("date-from", "date-to")

	return cmd
}

func run(ctx context.Context, opts importOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", opts.configPath, err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	return application.Run(ctx, app.Request{
		Source:    opts.source,
		Client:    opts.client,
		DateFrom:  opts.dateFrom,
		DateTo:    opts.dateTo,
		LastNDays: opts.lastNDays,
		Scope:     opts.scope(),
	})
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "mpimport: interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "mpimport: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
