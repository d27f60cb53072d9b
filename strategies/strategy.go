// Package strategies turns per-snapshot signals into at most one trade decision.
package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/voitrader/signals"
)

// Action is what a strategy wants done this tick.
type Action int

const (
	None Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "none"
	}
}

// Input is everything a strategy may look at for one snapshot.
type Input struct {
	Metrics     signals.Metrics
	BestBid     float64
	BestAsk     float64
	HasPosition bool
}

// Decision is a strategy's verdict. Price is only meaningful when Action is
// not None. Reason names the rule that fired or the gate that blocked.
type Decision struct {
	Action Action
	Price  float64
	Reason string
}

// Strategy is called once per evaluated snapshot.
type Strategy interface {
	Name() string
	Decide(in Input) Decision
}

// Factory builds a strategy from the shared parameter set.
type Factory func(p Params) Strategy

var registry = map[string]Factory{}

// Register adds a named strategy factory. Names are case-insensitive.
func Register(name string, f Factory) {
	registry[strings.ToLower(strings.TrimSpace(name))] = f
}

// Names lists registered strategies in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByName builds the strategy registered under name. An empty name selects
// the imbalance strategy.
func ByName(name string, p Params) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "imbalance"
	}
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p), nil
}

func init() {
	Register("imbalance", func(p Params) Strategy { return NewImbalance(p) })
	Register("voi", func(p Params) Strategy { return NewImbalance(p) })
	Register("noop", func(Params) Strategy { return Noop{} })
}
