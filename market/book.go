// Package market holds the order-book snapshot consumed by the signal engine.
package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrBadBook is the class of every data-quality failure on a snapshot.
	ErrBadBook = errors.New("bad order book")
	// ErrEmptySide means one side of the book has no levels.
	ErrEmptySide = fmt.Errorf("%w: empty side", ErrBadBook)
	// ErrNonFinitePrice means a best price is NaN or infinite.
	ErrNonFinitePrice = fmt.Errorf("%w: non-finite price", ErrBadBook)
	// ErrBadAmount means a level amount is negative, NaN or infinite.
	ErrBadAmount = fmt.Errorf("%w: bad amount", ErrBadBook)
)

// Level is one price level of a book side.
type Level struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Book is a point-in-time view of one instrument. Bids and Asks are ordered
// best level first. LastPrice is the last traded price when the feed supplies
// one and 0 otherwise.
type Book struct {
	Symbol    string
	Time      time.Time
	Bids      []Level
	Asks      []Level
	LastPrice float64
}

// BestBid returns the top bid level.
func (b Book) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level.
func (b Book) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Validate reports whether the book can be evaluated this tick.
func (b Book) Validate() error {
	bid, ok := b.BestBid()
	if !ok {
		return fmt.Errorf("bids: %w", ErrEmptySide)
	}
	ask, ok := b.BestAsk()
	if !ok {
		return fmt.Errorf("asks: %w", ErrEmptySide)
	}
	if !IsFinite(bid.Price) {
		return fmt.Errorf("best bid %v: %w", bid.Price, ErrNonFinitePrice)
	}
	if !IsFinite(ask.Price) {
		return fmt.Errorf("best ask %v: %w", ask.Price, ErrNonFinitePrice)
	}
	if err := checkAmounts("bids", b.Bids); err != nil {
		return err
	}
	return checkAmounts("asks", b.Asks)
}

func checkAmounts(side string, levels []Level) error {
	for i, l := range levels {
		if !IsFinite(l.Amount) || l.Amount < 0 {
			return fmt.Errorf("%s[%d] amount %v: %w", side, i, l.Amount, ErrBadAmount)
		}
	}
	return nil
}

// IsFinite is false for NaN and both infinities.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
