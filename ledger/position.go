package ledger

import "time"

// Side is the direction of a fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Reasons attached to fills in the journal and logs.
const (
	ReasonEntry      = "entry"
	ReasonSignalExit = "signal_exit"
	ReasonTakeProfit = "take_profit"
	ReasonStopLoss   = "stop_loss"
)

// Position is one open lot. Its size is the ledger's configured trade size.
type Position struct {
	ID         string
	EntryPrice float64
	OpenedAt   time.Time
}

// PnL is the fractional move of price relative to the entry.
func (p Position) PnL(price float64) float64 {
	return (price - p.EntryPrice) / p.EntryPrice
}

// Fill is the result of one executed trade.
type Fill struct {
	ID         string
	PositionID string
	Side       Side
	Price      float64
	Size       float64
	Cost       float64
	EntryPrice float64
	PnL        float64 // fractional, sells only
	Cash       float64 // cash after the fill
	Reason     string
	Time       time.Time
}
