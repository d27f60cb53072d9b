package strategies

// Noop never trades. Risk exits and valuation still run under it.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Decide(Input) Decision { return Decision{Reason: "noop"} }
