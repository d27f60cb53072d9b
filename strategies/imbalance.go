package strategies

import (
	"math"

	"github.com/rustyeddy/voitrader/market"
)

// Skip and fire reasons reported by Imbalance.
const (
	ReasonSpreadNonFinite = "spread_non_finite"
	ReasonSpreadWide      = "spread_wide"
	ReasonVOIFlat         = "voi_flat"
	ReasonOIRUndefined    = "oir_undefined"
	ReasonNoSignal        = "no_signal"
	ReasonBuyImbalance    = "bid_imbalance"
	ReasonSellBasis       = "ask_imbalance_basis"
)

// Params are the entry-rule thresholds.
type Params struct {
	SpreadThreshold float64 // percent
	OIRThreshold    float64
	MPBThreshold    float64
}

// DefaultParams are the thresholds the engine ships with.
func DefaultParams() Params {
	return Params{
		SpreadThreshold: 0.05,
		OIRThreshold:    0.1,
		MPBThreshold:    -0.1,
	}
}

// Imbalance buys into bid-side volume imbalance and sells held inventory on
// ask-side imbalance with a negative mid-price basis.
type Imbalance struct {
	p Params
}

func NewImbalance(p Params) *Imbalance {
	return &Imbalance{p: p}
}

func (s *Imbalance) Name() string { return "imbalance" }

func (s *Imbalance) Params() Params { return s.p }

// ShouldTrade is the gate in front of both rules: the spread must be finite
// and no wider than the threshold, and there must be some imbalance.
func ShouldTrade(spread, voi, spreadThreshold float64) bool {
	return gate(spread, voi, spreadThreshold) == ""
}

func gate(spread, voi, spreadThreshold float64) string {
	switch {
	case !market.IsFinite(spread):
		return ReasonSpreadNonFinite
	case spread > spreadThreshold:
		return ReasonSpreadWide
	case !(math.Abs(voi) > 0):
		return ReasonVOIFlat
	}
	return ""
}

// Decide evaluates the buy rule first and the sell rule second; the first
// match wins.
func (s *Imbalance) Decide(in Input) Decision {
	m := in.Metrics
	if reason := gate(m.Spread, m.VOI, s.p.SpreadThreshold); reason != "" {
		return Decision{Reason: reason}
	}
	if !market.IsFinite(m.OIR) {
		return Decision{Reason: ReasonOIRUndefined}
	}

	if m.VOI > 0 && m.OIR > s.p.OIRThreshold {
		return Decision{Action: Buy, Price: in.BestBid, Reason: ReasonBuyImbalance}
	}
	if m.VOI < 0 && m.MPB < s.p.MPBThreshold && in.HasPosition {
		return Decision{Action: Sell, Price: in.BestAsk, Reason: ReasonSellBasis}
	}
	return Decision{Reason: ReasonNoSignal}
}
