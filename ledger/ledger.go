// Package ledger owns cash and open positions for a single traded symbol.
//
// The ledger is the only place state changes: cash and positions move only
// through Execute and CheckTPSL. It has a single writer (the evaluation loop)
// and takes no locks.
package ledger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/voitrader/journal"
	"github.com/rustyeddy/voitrader/market"
	"github.com/rustyeddy/voitrader/metrics"
	"github.com/rustyeddy/voitrader/pkg/id"
)

// Config fixes the ledger's identity and trade sizing for its lifetime.
type Config struct {
	Symbol      string
	InitialCash float64
	TradeSize   float64
	FeeRate     float64 // applied by risk exits

	// RejectInsufficientCash refuses buys whose debit exceeds cash.
	// Off by default: cash is allowed to go negative.
	RejectInsufficientCash bool
}

type Ledger struct {
	cfg       Config
	cash      float64
	positions map[string]Position
	order     []string // open position IDs, oldest first

	ids     *id.Generator
	now     func() time.Time
	journal journal.Journal
	log     zerolog.Logger

	underflows int
	rejections int
}

type Option func(*Ledger)

// WithJournal sets the audit sink. Defaults to journal.Nop.
func WithJournal(j journal.Journal) Option {
	return func(l *Ledger) {
		if j != nil {
			l.journal = j
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithIDs(g *id.Generator) Option {
	return func(l *Ledger) {
		if g != nil {
			l.ids = g
		}
	}
}

func New(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if !market.IsFinite(cfg.TradeSize) || cfg.TradeSize <= 0 {
		return nil, fmt.Errorf("%w: trade size must be positive", ErrInvalidConfig)
	}
	if !market.IsFinite(cfg.FeeRate) || cfg.FeeRate < 0 {
		return nil, fmt.Errorf("%w: fee rate must be non-negative", ErrInvalidConfig)
	}
	if !market.IsFinite(cfg.InitialCash) {
		return nil, fmt.Errorf("%w: initial cash must be finite", ErrInvalidConfig)
	}

	l := &Ledger{
		cfg:       cfg,
		cash:      cfg.InitialCash,
		positions: make(map[string]Position),
		ids:       id.NewGenerator(),
		now:       time.Now,
		journal:   journal.Nop{},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With().Str("component", "ledger").Logger()
	return l, nil
}

func (l *Ledger) Symbol() string     { return l.cfg.Symbol }
func (l *Ledger) Cash() float64      { return l.cash }
func (l *Ledger) TradeSize() float64 { return l.cfg.TradeSize }
func (l *Ledger) OpenPositions() int { return len(l.order) }

// Now reads the ledger's clock, the one stamped on fills.
func (l *Ledger) Now() time.Time { return l.now() }

// Underflows counts sells that found no open position.
func (l *Ledger) Underflows() int { return l.underflows }

// Rejections counts buys refused for lack of cash.
func (l *Ledger) Rejections() int { return l.rejections }

// Positions returns a copy of the open positions, oldest first.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.order))
	for _, pid := range l.order {
		out = append(out, l.positions[pid])
	}
	return out
}

// Execute fills a trade at price.
//
// A buy opens a new position and debits price*size plus the fee. A sell
// closes the most recently opened position and credits price*size minus the
// fee. A sell with nothing open changes nothing and returns ErrNoOpenPosition.
func (l *Ledger) Execute(price float64, side Side, size, feeRate float64) (Fill, error) {
	if !market.IsFinite(price) || price <= 0 {
		return Fill{}, fmt.Errorf("%w: price %v", ErrInvalidOrder, price)
	}
	if !market.IsFinite(size) || size <= 0 {
		return Fill{}, fmt.Errorf("%w: size %v", ErrInvalidOrder, size)
	}
	if !market.IsFinite(feeRate) || feeRate < 0 {
		return Fill{}, fmt.Errorf("%w: fee rate %v", ErrInvalidOrder, feeRate)
	}

	switch side {
	case Buy:
		return l.buy(price, size, feeRate)
	case Sell:
		if len(l.order) == 0 {
			l.underflows++
			metrics.SellUnderflowsTotal.WithLabelValues(l.cfg.Symbol).Inc()
			l.log.Warn().
				Str("action", string(Sell)).
				Str("symbol", l.cfg.Symbol).
				Float64("price", price).
				Int("underflows", l.underflows).
				Msg("sell with no open position ignored")
			return Fill{}, ErrNoOpenPosition
		}
		last := l.positions[l.order[len(l.order)-1]]
		return l.closePosition(last, price, size, feeRate, ReasonSignalExit), nil
	default:
		return Fill{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, side)
	}
}

func (l *Ledger) buy(price, size, feeRate float64) (Fill, error) {
	cost := size * price * feeRate
	debit := price*size + cost
	if l.cfg.RejectInsufficientCash && debit > l.cash {
		l.rejections++
		metrics.RejectionsTotal.WithLabelValues(l.cfg.Symbol, "insufficient_cash").Inc()
		l.log.Info().
			Str("action", string(Buy)).
			Str("symbol", l.cfg.Symbol).
			Float64("price", price).
			Float64("debit", debit).
			Float64("cash", l.cash).
			Msg("buy rejected")
		return Fill{}, fmt.Errorf("%w: need %.8f have %.8f", ErrInsufficientCash, debit, l.cash)
	}

	now := l.now()
	pos := Position{ID: l.ids.Next(), EntryPrice: price, OpenedAt: now}
	l.positions[pos.ID] = pos
	l.order = append(l.order, pos.ID)
	l.cash -= debit

	fill := Fill{
		ID:         l.ids.Next(),
		PositionID: pos.ID,
		Side:       Buy,
		Price:      price,
		Size:       size,
		Cost:       cost,
		EntryPrice: price,
		Cash:       l.cash,
		Reason:     ReasonEntry,
		Time:       now,
	}
	l.record(fill)
	return fill, nil
}

// closePosition removes exactly the given position and credits the sale.
func (l *Ledger) closePosition(pos Position, price, size, feeRate float64, reason string) Fill {
	cost := size * price * feeRate
	l.remove(pos.ID)
	l.cash += price*size - cost

	fill := Fill{
		ID:         l.ids.Next(),
		PositionID: pos.ID,
		Side:       Sell,
		Price:      price,
		Size:       size,
		Cost:       cost,
		EntryPrice: pos.EntryPrice,
		PnL:        pos.PnL(price),
		Cash:       l.cash,
		Reason:     reason,
		Time:       l.now(),
	}
	l.record(fill)
	return fill
}

func (l *Ledger) remove(pid string) {
	delete(l.positions, pid)
	for i := len(l.order) - 1; i >= 0; i-- {
		if l.order[i] == pid {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

func (l *Ledger) record(f Fill) {
	metrics.TradesTotal.WithLabelValues(l.cfg.Symbol, string(f.Side), f.Reason).Inc()
	metrics.OpenPositions.WithLabelValues(l.cfg.Symbol).Set(float64(len(l.order)))

	ev := l.log.Info().
		Str("action", string(f.Side)).
		Float64("size", f.Size).
		Str("symbol", l.cfg.Symbol).
		Float64("price", f.Price).
		Float64("cost", f.Cost).
		Float64("cash", f.Cash).
		Str("position_id", f.PositionID).
		Str("reason", f.Reason).
		Time("at", f.Time)
	if f.Side == Sell {
		ev = ev.Float64("entry_price", f.EntryPrice).Float64("pnl_pct", f.PnL*100)
	}
	ev.Msg("trade executed")

	err := l.journal.RecordTrade(journal.TradeRecord{
		ID:         f.ID,
		PositionID: f.PositionID,
		Symbol:     l.cfg.Symbol,
		Side:       string(f.Side),
		Size:       f.Size,
		Price:      f.Price,
		EntryPrice: f.EntryPrice,
		Cost:       f.Cost,
		Cash:       f.Cash,
		PnLPct:     f.PnL,
		Reason:     f.Reason,
		Time:       f.Time,
	})
	if err != nil {
		l.log.Error().Err(err).Str("fill_id", f.ID).Msg("journal trade")
	}
}

// CheckTPSL closes every open position whose move from entry to bid reaches
// the take-profit (pnl >= tp) or stop-loss (pnl <= -sl) threshold. Each
// position is closed at most once, by identity, selling the configured trade
// size at bid. A non-finite or non-positive bid closes nothing.
func (l *Ledger) CheckTPSL(bid, tp, sl float64) []Fill {
	if !market.IsFinite(bid) || bid <= 0 {
		return nil
	}

	type mark struct {
		pos    Position
		reason string
	}
	var marked []mark
	for _, pid := range l.order {
		pos := l.positions[pid]
		pnl := pos.PnL(bid)
		switch {
		case pnl >= tp:
			marked = append(marked, mark{pos, ReasonTakeProfit})
		case pnl <= -sl:
			marked = append(marked, mark{pos, ReasonStopLoss})
		}
	}

	fills := make([]Fill, 0, len(marked))
	for _, m := range marked {
		l.log.Info().
			Str("symbol", l.cfg.Symbol).
			Str("position_id", m.pos.ID).
			Str("trigger", m.reason).
			Float64("price", bid).
			Float64("pnl_pct", m.pos.PnL(bid)*100).
			Msg("risk exit triggered")
		metrics.RiskExitsTotal.WithLabelValues(l.cfg.Symbol, m.reason).Inc()
		fills = append(fills, l.closePosition(m.pos, bid, l.cfg.TradeSize, l.cfg.FeeRate, m.reason))
	}
	return fills
}

// Value marks the ledger at bid: cash plus every open position at bid.
func (l *Ledger) Value(bid float64) float64 {
	return l.cash + float64(len(l.order))*l.cfg.TradeSize*bid
}
