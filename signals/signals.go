// Package signals derives short-horizon imbalance metrics from an order book.
//
// Everything here is pure. Numeric edge cases are passed through rather than
// trapped: a zero best bid yields a non-finite spread and an empty book yields
// a NaN OIR. Callers decide what an unusable signal means.
package signals

import (
	"github.com/rustyeddy/voitrader/market"
)

// Metrics is the full signal set for one snapshot.
type Metrics struct {
	Spread    float64 // percent of best bid
	BidVolume float64
	AskVolume float64
	VOI       float64
	OIR       float64
	MidPrice  float64
	MPB       float64
}

// Spread is the best ask/bid gap as a percentage of the best bid.
func Spread(bid, ask float64) float64 {
	return (ask - bid) / bid * 100.0
}

// Volumes sums the amount on every level of each side.
func Volumes(b market.Book) (bidVolume, askVolume float64) {
	for _, l := range b.Bids {
		bidVolume += l.Amount
	}
	for _, l := range b.Asks {
		askVolume += l.Amount
	}
	return bidVolume, askVolume
}

// VOI returns the volume order imbalance along with both side volumes.
func VOI(b market.Book) (voi, bidVolume, askVolume float64) {
	bidVolume, askVolume = Volumes(b)
	return bidVolume - askVolume, bidVolume, askVolume
}

// OIR normalises the imbalance by total volume. NaN when both volumes are 0.
func OIR(bidVolume, askVolume float64) float64 {
	return (bidVolume - askVolume) / (bidVolume + askVolume)
}

// MidPrice is the midpoint of the best bid and ask.
func MidPrice(bid, ask float64) float64 {
	return (bid + ask) / 2.0
}

// MPB is the mid-price basis: last price minus mid price.
func MPB(lastPrice, midPrice float64) float64 {
	return lastPrice - midPrice
}

// Compute derives every metric from a validated book.
//
// lastPrice feeds MPB. Passing 0 (or anything non-positive) uses the current
// mid-price as the last price, which makes MPB structurally 0. That matches
// the engine's default behaviour; a carried last-trade price is opt-in.
func Compute(b market.Book, lastPrice float64) (Metrics, error) {
	if err := b.Validate(); err != nil {
		return Metrics{}, err
	}
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()

	voi, bidVol, askVol := VOI(b)
	mid := MidPrice(bid.Price, ask.Price)
	if lastPrice <= 0 || !market.IsFinite(lastPrice) {
		lastPrice = mid
	}

	return Metrics{
		Spread:    Spread(bid.Price, ask.Price),
		BidVolume: bidVol,
		AskVolume: askVol,
		VOI:       voi,
		OIR:       OIR(bidVol, askVol),
		MidPrice:  mid,
		MPB:       MPB(lastPrice, mid),
	}, nil
}
