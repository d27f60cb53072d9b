package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/voitrader/config"
	"github.com/rustyeddy/voitrader/engine"
	"github.com/rustyeddy/voitrader/feed"
	"github.com/rustyeddy/voitrader/journal"
	"github.com/rustyeddy/voitrader/ledger"
	"github.com/rustyeddy/voitrader/metrics"
	"github.com/rustyeddy/voitrader/pkg/logx"
	"github.com/rustyeddy/voitrader/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate order-book snapshots and trade the ledger",
	Long: `Start the evaluation loop against the configured feed.

The loop runs until the feed ends, fails, or the process receives
SIGINT/SIGTERM. Shutdown happens between snapshots and the last portfolio
value is logged.

Examples:
  voitrader run -c voitrader.yaml
  voitrader run --replay testdata/btcusdt_book.csv --interval 0s
  voitrader run --url wss://example.com/book`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runConfigPath string
	runReplayPath string
	runFeedURL    string
	runInterval   string
	runLogLevel   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (defaults when empty)")
	runCmd.Flags().StringVar(&runReplayPath, "replay", "", "replay CSV file, overrides feed settings")
	runCmd.Flags().StringVar(&runFeedURL, "url", "", "websocket URL, overrides feed settings")
	runCmd.Flags().StringVar(&runInterval, "interval", "", "replay pacing, e.g. 1s or 0s")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "debug, info, warn or error")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	log := logx.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := run(ctx, cfg, log)
	fmt.Fprintf(cmd.OutOrStdout(), "ticks=%d trades=%d exits=%d skips=%d stale=%d",
		sum.Ticks, sum.Trades, sum.Exits, sum.Skips, sum.Stale)
	if sum.HasValue {
		fmt.Fprintf(cmd.OutOrStdout(), " value=%.8f", sum.LastValue)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return err
}

func applyRunFlags(cfg *config.Config) error {
	switch {
	case runReplayPath != "":
		cfg.Feed.Type, cfg.Feed.Path = "replay", runReplayPath
	case runFeedURL != "":
		cfg.Feed.Type, cfg.Feed.URL = "websocket", runFeedURL
	}
	if runInterval != "" {
		cfg.Feed.Interval = runInterval
	}
	if runLogLevel != "" {
		cfg.Log.Level = runLogLevel
	}
	return cfg.Validate()
}

// run wires the journal, ledger, strategy, feed and metrics server from cfg
// and blocks until the engine returns.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (engine.Summary, error) {
	j, err := newJournal(cfg.Journal)
	if err != nil {
		return engine.Summary{}, err
	}
	defer func() {
		if err := j.Close(); err != nil {
			log.Error().Err(err).Msg("close journal")
		}
	}()

	l, err := ledger.New(cfg.LedgerConfig(), ledger.WithJournal(j), ledger.WithLogger(log))
	if err != nil {
		return engine.Summary{}, err
	}
	strat, err := strategies.ByName(cfg.Trading.Strategy, cfg.StrategyParams())
	if err != nil {
		return engine.Summary{}, err
	}
	eng, err := engine.New(l, strat, cfg.EngineOptions(), log, j)
	if err != nil {
		return engine.Summary{}, err
	}

	producer, err := newProducer(cfg, log)
	if err != nil {
		return engine.Summary{}, err
	}
	stale, _ := cfg.Feed.StaleDuration()
	pipe := feed.NewPipe(cfg.Feed.Buffer, stale)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := feed.Pump(gctx, producer, pipe)
		if errors.Is(err, context.Canceled) || errors.Is(err, feed.ErrClosed) {
			return nil
		}
		return err
	})

	var sum engine.Summary
	g.Go(func() error {
		var err error
		sum, err = eng.Run(gctx, pipe)
		// Unblock a producer still publishing.
		pipe.CloseWithError(nil)
		return errEngineDone(err)
	})

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		g.Go(func() error {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, errDone) {
		err = nil
	}
	return sum, err
}

// errDone cancels the group when the engine returns cleanly.
var errDone = errors.New("engine done")

func errEngineDone(err error) error {
	if err != nil {
		return err
	}
	return errDone
}

func newJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.TradesFile, cfg.ValuationsFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "none", "":
		return journal.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}

func newProducer(cfg *config.Config, log zerolog.Logger) (feed.Producer, error) {
	switch cfg.Feed.Type {
	case "replay":
		interval, err := cfg.Feed.IntervalDuration()
		if err != nil {
			return nil, err
		}
		return &feed.Replay{
			Path:     cfg.Feed.Path,
			Symbol:   cfg.Account.Symbol,
			Interval: interval,
			Log:      log.With().Str("component", "replay").Logger(),
		}, nil
	case "websocket":
		return &feed.WebSocket{
			URL:       cfg.Feed.URL,
			Symbol:    cfg.Account.Symbol,
			Reconnect: cfg.Feed.Reconnect,
			Log:       log.With().Str("component", "websocket").Logger(),
		}, nil
	}
	return nil, fmt.Errorf("unknown feed type %q", cfg.Feed.Type)
}
