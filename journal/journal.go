// Package journal is the audit trail for ledger activity: every fill and every
// portfolio valuation is written here in addition to the structured log.
package journal

import "time"

// TradeRecord is one executed fill.
type TradeRecord struct {
	ID         string // unique per fill
	PositionID string // position opened or closed by the fill
	Symbol     string
	Side       string // "buy" or "sell"
	Size       float64
	Price      float64
	EntryPrice float64
	Cost       float64
	Cash       float64 // cash balance after the fill
	PnLPct     float64 // realised move vs entry, sells only
	Reason     string
	Time       time.Time
}

// ValuationRecord is a mark-to-market of the ledger at the current bid.
type ValuationRecord struct {
	Time          time.Time
	Symbol        string
	Bid           float64
	Cash          float64
	OpenPositions int
	Value         float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordValuation(ValuationRecord) error
	Close() error
}
