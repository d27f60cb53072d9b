package journal

import "sync"

// Memory keeps records in process. Handy for tests and dry runs.
type Memory struct {
	mu         sync.Mutex
	trades     []TradeRecord
	valuations []ValuationRecord
	closed     bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.mu.Lock()
	m.trades = append(m.trades, t)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecordValuation(v ValuationRecord) error {
	m.mu.Lock()
	m.valuations = append(m.valuations, v)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Trades returns a copy of the recorded fills.
func (m *Memory) Trades() []TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

// Valuations returns a copy of the recorded valuations.
func (m *Memory) Valuations() []ValuationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ValuationRecord, len(m.valuations))
	copy(out, m.valuations)
	return out
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error         { return nil }
func (Nop) RecordValuation(ValuationRecord) error { return nil }
func (Nop) Close() error                          { return nil }
