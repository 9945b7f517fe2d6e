package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query trade and capitals records from the SQLite journal. Lists are
written to stdout as CSV.

Subcommands:
  trade    - Get details of a specific trade by ID
  trades   - List trades in a date range
  capitals - List opening or closing capitals with the derived series

Examples:
  tradesim journal trade 01J9Z4KX5V7W2Q8H3M6N0P1R2S
  tradesim journal trades --from 2024-01-01 --to 2024-02-01
  tradesim journal capitals --kind closing`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List trades in a date range",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalCapitalsCmd = &cobra.Command{
	Use:   "capitals",
	Short: "List capitals snapshots",
	Args:  cobra.NoArgs,
	RunE:  runJournalCapitals,
}

var (
	journalDBPath string
	journalFrom   string
	journalTo     string
	journalKind   string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalCapitalsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./tradesim.sqlite", "path to SQLite journal DB")
	journalCmd.PersistentFlags().StringVar(&journalFrom, "from", "", "first day, YYYY-MM-DD")
	journalCmd.PersistentFlags().StringVar(&journalTo, "to", "", "day after the last, YYYY-MM-DD")
	journalCapitalsCmd.Flags().StringVarP(&journalKind, "kind", "k", string(journal.Closing), "opening or closing")
}

func journalRange() (journal.Range, error) {
	var r journal.Range
	var err error
	if journalFrom != "" {
		if r.From, err = time.Parse(time.DateOnly, journalFrom); err != nil {
			return r, fmt.Errorf("--from: %w", err)
		}
	}
	if journalTo != "" {
		if r.To, err = time.Parse(time.DateOnly, journalTo); err != nil {
			return r, fmt.Errorf("--to: %w", err)
		}
	}
	return r, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	e, err := j.GetTrade(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Printf("Trade %s\n", e.ID)
	fmt.Printf("  Time: %s\n", e.Time.Format(time.RFC3339))
	fmt.Printf("  Action: %s\n", e.Action)
	fmt.Printf("  Code: %s\n", e.Code)
	fmt.Printf("  Volume: %d @ %.4f (%.2f)\n", e.Volume, e.Price, e.TotalValue)
	if e.Action.Exit() {
		fmt.Printf("  Delta: %.4f (%.2f%%)\n", e.PriceDelta, e.PercentDelta*100)
		fmt.Printf("  Realized Return: %.2f%%\n", e.RealizedReturn*100)
	}
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	r, err := journalRange()
	if err != nil {
		return err
	}
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	book := journal.NewTradeBook(j, nil)
	trades, err := book.FetchTrades(cmd.Context(), r)
	if err != nil {
		return err
	}
	return journal.WriteTradesCSV(os.Stdout, trades)
}

func runJournalCapitals(cmd *cobra.Command, args []string) error {
	kind := journal.Kind(journalKind)
	if kind != journal.Opening && kind != journal.Closing {
		return fmt.Errorf("--kind must be %q or %q", journal.Opening, journal.Closing)
	}
	r, err := journalRange()
	if err != nil {
		return err
	}
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	book := journal.NewTradeBook(j, nil)
	points, err := book.FetchCapitals(cmd.Context(), kind, r)
	if err != nil {
		return err
	}
	return journal.WriteCapitalsCSV(os.Stdout, points)
}
