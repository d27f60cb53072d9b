// Package engine runs the per-snapshot evaluation loop: signals, one
// strategy decision, risk exits and valuation, in that order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/voitrader/feed"
	"github.com/rustyeddy/voitrader/journal"
	"github.com/rustyeddy/voitrader/ledger"
	"github.com/rustyeddy/voitrader/market"
	"github.com/rustyeddy/voitrader/metrics"
	"github.com/rustyeddy/voitrader/signals"
	"github.com/rustyeddy/voitrader/strategies"
)

// Skip reasons for snapshots that could not be evaluated.
const (
	SkipEmptySide      = "empty_side"
	SkipNonFinitePrice = "non_finite_price"
	SkipBadAmount      = "bad_amount"
	SkipBadBook        = "bad_book"
)

type Options struct {
	TakeProfit float64
	StopLoss   float64
	FeeRate    float64
	TradeSize  float64

	// UseLastTrade feeds the snapshot's last trade price into MPB. When
	// false MPB compares the mid-price with itself and is always zero.
	UseLastTrade bool
}

// Summary accumulates over a Run.
type Summary struct {
	Ticks     int
	Trades    int
	Exits     int
	Skips     int // snapshots that failed data-quality checks
	Stale     int // staleness windows with no snapshot
	LastValue float64
	HasValue  bool
}

// TickResult describes what one snapshot did.
type TickResult struct {
	Metrics  signals.Metrics
	Skip     string
	Decision strategies.Decision
	Fills    []ledger.Fill
	Value    float64
	HasValue bool
}

// Engine is the single writer of its ledger. It is not safe for concurrent use.
type Engine struct {
	ledger   *ledger.Ledger
	strategy strategies.Strategy
	opts     Options
	log      zerolog.Logger
	journal  journal.Journal

	summary Summary
}

func New(l *ledger.Ledger, s strategies.Strategy, opts Options, log zerolog.Logger, j journal.Journal) (*Engine, error) {
	if l == nil {
		return nil, errors.New("engine: ledger is required")
	}
	if s == nil {
		return nil, errors.New("engine: strategy is required")
	}
	if !market.IsFinite(opts.TradeSize) || opts.TradeSize <= 0 {
		return nil, fmt.Errorf("engine: trade size must be positive, got %v", opts.TradeSize)
	}
	checks := []struct {
		name string
		v    float64
	}{
		{"take profit", opts.TakeProfit},
		{"stop loss", opts.StopLoss},
		{"fee rate", opts.FeeRate},
	}
	for _, c := range checks {
		if !market.IsFinite(c.v) || c.v < 0 {
			return nil, fmt.Errorf("engine: %s must be a non-negative number, got %v", c.name, c.v)
		}
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Engine{
		ledger:   l,
		strategy: s,
		opts:     opts,
		log:      log.With().Str("component", "engine").Str("symbol", l.Symbol()).Logger(),
		journal:  j,
	}, nil
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }
func (e *Engine) Summary() Summary       { return e.summary }

// Run pulls snapshots from src until the stream ends (nil error), ctx is
// cancelled (nil error, checked between snapshots) or the feed fails (the
// feed error, wrapped). The last known portfolio value is logged on exit.
func (e *Engine) Run(ctx context.Context, src feed.Source) (Summary, error) {
	e.log.Info().
		Str("strategy", e.strategy.Name()).
		Float64("cash", e.ledger.Cash()).
		Msg("engine started")

	for {
		if ctx.Err() != nil {
			e.stopped("context cancelled")
			return e.summary, nil
		}

		b, err := src.Next(ctx)
		switch {
		case err == nil:
			e.step(b)
		case errors.Is(err, feed.ErrNoData):
			e.summary.Stale++
			metrics.FeedErrorsTotal.WithLabelValues(e.ledger.Symbol(), "stale").Inc()
			e.log.Debug().Msg("no data")
		case errors.Is(err, io.EOF):
			e.stopped("end of stream")
			return e.summary, nil
		case ctx.Err() != nil:
			e.stopped("context cancelled")
			return e.summary, nil
		default:
			ev := e.log.Error().Err(err)
			if e.summary.HasValue {
				ev = ev.Float64("value", e.summary.LastValue)
			}
			ev.Msg("feed failed")
			return e.summary, fmt.Errorf("engine: feed: %w", err)
		}
	}
}

func (e *Engine) stopped(why string) {
	ev := e.log.Info().
		Str("why", why).
		Int("ticks", e.summary.Ticks).
		Int("trades", e.summary.Trades).
		Int("exits", e.summary.Exits).
		Float64("cash", e.ledger.Cash()).
		Int("open_positions", e.ledger.OpenPositions())
	if e.summary.HasValue {
		ev = ev.Float64("value", e.summary.LastValue)
	}
	ev.Msg("engine stopped")
}

// Step evaluates one snapshot. It refuses to start once ctx is done.
func (e *Engine) Step(ctx context.Context, b market.Book) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}
	return e.step(b), nil
}

func (e *Engine) step(b market.Book) TickResult {
	symbol := e.ledger.Symbol()
	e.summary.Ticks++
	metrics.SnapshotsTotal.WithLabelValues(symbol).Inc()

	var res TickResult
	bid, hasBid := b.BestBid()

	last := 0.0
	if e.opts.UseLastTrade {
		last = b.LastPrice
	}
	m, err := signals.Compute(b, last)
	if err != nil {
		res.Skip = skipReason(err)
		e.summary.Skips++
		metrics.SkipsTotal.WithLabelValues(symbol, res.Skip).Inc()
		e.log.Debug().Err(err).Str("reason", res.Skip).Msg("skipping snapshot")
		// No entry or signal exit, but a usable bid still drives risk exits.
		if hasBid {
			e.sweep(bid.Price, &res)
			e.value(bid.Price, &res)
		}
		return res
	}
	res.Metrics = m

	ask, _ := b.BestAsk()
	d := e.strategy.Decide(strategies.Input{
		Metrics:     m,
		BestBid:     bid.Price,
		BestAsk:     ask.Price,
		HasPosition: e.ledger.OpenPositions() > 0,
	})
	res.Decision = d

	e.log.Debug().
		Float64("spread", m.Spread).
		Float64("voi", m.VOI).
		Float64("oir", m.OIR).
		Float64("mpb", m.MPB).
		Str("action", d.Action.String()).
		Str("reason", d.Reason).
		Msg("signals")

	switch d.Action {
	case strategies.Buy:
		e.execute(d, ledger.Buy, &res)
	case strategies.Sell:
		e.execute(d, ledger.Sell, &res)
	default:
		if d.Reason != strategies.ReasonNoSignal {
			metrics.SkipsTotal.WithLabelValues(symbol, d.Reason).Inc()
		}
	}

	e.sweep(bid.Price, &res)
	e.value(bid.Price, &res)
	return res
}

// sweep runs the take-profit/stop-loss check at bid. The ledger ignores a
// non-finite or non-positive bid.
func (e *Engine) sweep(bid float64, res *TickResult) {
	exits := e.ledger.CheckTPSL(bid, e.opts.TakeProfit, e.opts.StopLoss)
	res.Fills = append(res.Fills, exits...)
	e.summary.Exits += len(exits)
}

func (e *Engine) execute(d strategies.Decision, side ledger.Side, res *TickResult) {
	f, err := e.ledger.Execute(d.Price, side, e.opts.TradeSize, e.opts.FeeRate)
	if err != nil {
		if !errors.Is(err, ledger.ErrNoOpenPosition) {
			e.log.Warn().Err(err).Str("side", string(side)).Float64("price", d.Price).Msg("order not filled")
		}
		return
	}
	e.summary.Trades++
	res.Fills = append(res.Fills, f)
}

// value marks the ledger at bid when bid is usable and records the result.
func (e *Engine) value(bid float64, res *TickResult) {
	if !market.IsFinite(bid) || bid <= 0 {
		return
	}
	symbol := e.ledger.Symbol()
	v := e.ledger.Value(bid)
	res.Value, res.HasValue = v, true
	e.summary.LastValue, e.summary.HasValue = v, true

	metrics.PortfolioValue.WithLabelValues(symbol).Set(v)
	metrics.OpenPositions.WithLabelValues(symbol).Set(float64(e.ledger.OpenPositions()))

	at := e.ledger.Now()
	e.log.Info().
		Float64("bid", bid).
		Float64("cash", e.ledger.Cash()).
		Int("open_positions", e.ledger.OpenPositions()).
		Float64("value", v).
		Time("at", at).
		Msg("portfolio value")

	err := e.journal.RecordValuation(journal.ValuationRecord{
		Time:          at,
		Symbol:        symbol,
		Bid:           bid,
		Cash:          e.ledger.Cash(),
		OpenPositions: e.ledger.OpenPositions(),
		Value:         v,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("journal valuation")
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, market.ErrEmptySide):
		return SkipEmptySide
	case errors.Is(err, market.ErrNonFinitePrice):
		return SkipNonFinitePrice
	case errors.Is(err, market.ErrBadAmount):
		return SkipBadAmount
	default:
		return SkipBadBook
	}
}
