package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/broker/paper"
	"github.com/rustyeddy/tradesim/cache"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/recon"
)

var reconCmd = &cobra.Command{
	Use:   "recon",
	Short: "Reconcile broker orders and positions into the cache",
	Long: `Recon opens the trading day (baseline positions and opening capitals)
and then reconciles the account into Redis, once or on an interval.

The broker is the in-process paper broker funded with --cash.

Examples:
  tradesim recon --once
  tradesim recon --interval 10s`,
	RunE: runRecon,
}

var (
	reconOnce     bool
	reconInterval time.Duration
	reconCash     float64
	reconDBPath   string
)

func init() {
	rootCmd.AddCommand(reconCmd)

	reconCmd.Flags().BoolVar(&reconOnce, "once", false, "run a single pass and exit")
	reconCmd.Flags().DurationVar(&reconInterval, "interval", 0, "override reconcile.interval")
	reconCmd.Flags().Float64Var(&reconCash, "cash", 0, "paper broker starting cash (default account.cash)")
	reconCmd.Flags().StringVarP(&reconDBPath, "db", "d", "", "override journal.db_path")
}

func runRecon(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if reconDBPath != "" {
		cfg.Journal.DBPath = reconDBPath
	}
	if reconInterval > 0 {
		cfg.Reconcile.Interval = reconInterval
	}
	if reconCash <= 0 {
		reconCash = cfg.Account.Cash
	}

	c, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer c.Close()

	store, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	engine, err := recon.New(cfg.ReconOptions(), paper.New(reconCash), c, journal.NewTradeBook(store, log), log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if _, err := engine.OpenDay(ctx); err != nil {
		return fmt.Errorf("open day: %w", err)
	}

	if reconOnce {
		rep, err := engine.Tick(ctx)
		printReport(rep)
		return err
	}
	return engine.Run(ctx, cfg.Reconcile.Interval)
}

func printReport(r recon.Report) {
	fmt.Printf("Reconcile %s: %s\n", r.Date, r.Status)
	if r.Err != nil {
		fmt.Printf("  Reason: %v\n", r.Err)
	}
	if r.Status != recon.StatusOK {
		return
	}
	fmt.Printf("  Orders: %d (%d adopted, %d expired)\n", r.Orders, r.Adopted, r.Expired)
	fmt.Printf("  Positions: %d\n", r.Positions)
	fmt.Printf("  Free Cash: %.2f\n", r.Account.FreeCash)
	fmt.Printf("  Frozen Cash: %.2f\n", r.Account.FrozenCash)
	fmt.Printf("  Market Value: %.2f\n", r.Account.MarketValue)
}
