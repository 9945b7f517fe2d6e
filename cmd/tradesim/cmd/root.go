package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tradesim",
	Short: "Daily-bar trading simulator and live account reconciler",
	Long: `Tradesim backtests lot-based equity strategies on daily or intraday bars
and reconciles a live account's orders and positions into a shared cache.

It provides tools for:
  - Backtesting strategies against adjusted historical bars
  - Running the reconciliation loop against Redis
  - Querying the trade and capitals journal
  - Generating and validating configuration files`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (defaults plus TRADESIM_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

// setup loads the configuration and builds the logger for a command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Dir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
