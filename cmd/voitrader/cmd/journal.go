package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/voitrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display audit records from the SQLite journal.

Subcommands:
  trade       - Get a fill by ID, or every fill of a position with --position
  today       - List fills executed today
  day         - List fills executed on a specific day
  valuations  - List portfolio valuations for a day

Examples:
  voitrader journal trade <fill-id>
  voitrader journal trade --position <position-id>
  voitrader journal today
  voitrader journal day 2024-01-15
  voitrader journal valuations 2024-01-15`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade [fill-id]",
	Short: "Get details of a specific fill",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List fills executed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List fills executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalValuationsCmd = &cobra.Command{
	Use:   "valuations [YYYY-MM-DD]",
	Short: "List portfolio valuations for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalValuations,
}

var (
	journalDBPath     string
	journalPositionID string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalValuationsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./voitrader.sqlite", "path to SQLite journal DB")
	journalTradeCmd.Flags().StringVarP(&journalPositionID, "position", "p", "", "list every fill of this position")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && journalPositionID == "" {
		return fmt.Errorf("need a fill id or --position")
	}
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	if journalPositionID != "" {
		recs, err := j.ListPositionTrades(journalPositionID)
		if err != nil {
			return fmt.Errorf("query position: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
		return nil
	}

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listTradesOn(cmd, time.Now().In(time.Local).Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return listTradesOn(cmd, args[0])
}

func listTradesOn(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalValuations(cmd *cobra.Command, args []string) error {
	day := time.Now().In(time.Local).Format("2006-01-02")
	if len(args) == 1 {
		day = args[0]
	}
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	vals, err := j.ListValuationsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query valuations: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatValuationsOrg(vals))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
