package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/indicators"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/sim"
	"github.com/rustyeddy/tradesim/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a strategy over historical bars",
	Long: `Backtest replays daily bars, optionally with intraday bars for exits and
entries, through the simulation engine and records every trade and daily
capital snapshot in the SQLite journal.

Bars CSV: time,code,open,high,low,close[,volume]
Factors CSV: time,code,factor

Example:
  tradesim backtest --bars data/daily.csv --factors data/factors.csv --strategy ma-cross`,
	RunE: runBacktest,
}

var (
	btBarsPath     string
	btFactorsPath  string
	btIntradayPath string
	btDBPath       string
	btStrategy     string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btBarsPath, "bars", "b", "", "path to daily bars CSV (required)")
	backtestCmd.Flags().StringVarP(&btFactorsPath, "factors", "f", "", "path to adjustment factors CSV")
	backtestCmd.Flags().StringVarP(&btIntradayPath, "intraday", "i", "", "path to intraday bars CSV")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "override journal.db_path")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "override strategy.name")

	backtestCmd.MarkFlagRequired("bars")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if btDBPath != "" {
		cfg.Journal.DBPath = btDBPath
	}
	if btStrategy != "" {
		cfg.Strategy.Name = btStrategy
	}

	strat, err := strategies.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	reg, err := indicators.NewBuilder().Add(strategies.DefaultIndicators()...).Build()
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	defs, err := reg.Resolve(strat.Indicators()...)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}

	bars, err := market.LoadBarsFile(btBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	var factors map[string][]market.Factor
	if btFactorsPath != "" {
		factors, err = market.LoadFactorsFile(btFactorsPath)
		if err != nil {
			return fmt.Errorf("load factors: %w", err)
		}
	}
	frames, err := sim.Prepare(market.GroupByCode(bars), factors, defs, log)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	store, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()
	book := journal.NewTradeBook(store, log)

	led, err := ledger.New(cfg.Account.Cash, cfg.Fees, cfg.LedgerOptions()...)
	if err != nil {
		return err
	}
	engine, err := sim.NewEngine(cfg.SimOptions(), strat, led, book, log)
	if err != nil {
		return err
	}

	log.Info("backtest starting",
		zap.String("strategy", strat.Name()),
		zap.Int("instruments", len(frames)),
		zap.String("journal", cfg.Journal.DBPath))

	var res sim.Result
	if btIntradayPath != "" {
		intraday, err := market.LoadBarsFile(btIntradayPath)
		if err != nil {
			return fmt.Errorf("load intraday bars: %w", err)
		}
		adjusted := sim.PrepareIntraday(market.GroupByCode(intraday), factors, log)
		res, err = engine.RunIntraday(cmd.Context(), frames, adjusted)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
	} else {
		res, err = engine.Run(cmd.Context(), frames)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	printResult(res)
	return nil
}

func printResult(r sim.Result) {
	fmt.Printf("\nBacktest Complete!\n")
	fmt.Printf("  Strategy: %s\n", r.Strategy)
	fmt.Printf("  Period: %s .. %s (%d days, %d steps)\n",
		market.DateKey(r.Start), market.DateKey(r.End), r.Days, r.Steps)
	fmt.Printf("  Start Value: %.2f\n", r.StartValue)
	fmt.Printf("  End Value: %.2f\n", r.EndValue)
	fmt.Printf("  Return: %.2f%%\n", r.Return*100)
	fmt.Printf("  Trades: %d opened, %d closed (%d wins, %d losses)\n", r.Opened, r.Closed, r.Wins, r.Losses)
	fmt.Printf("  Exits: %d stop-loss, %d take-profit\n", r.StopLosses, r.TakeProfits)
}
