package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/voitrader/journal"
	"github.com/rustyeddy/voitrader/pkg/id"
)

const (
	testTradeSize = 0.001
	testTP        = 0.01
	testSL        = 0.02
	testFee       = 0.005
	tolerance     = 1e-5
)

var testNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newLedger(t *testing.T, opts ...Option) (*Ledger, *journal.Memory) {
	t.Helper()
	j := journal.NewMemory()
	base := []Option{
		WithJournal(j),
		WithClock(func() time.Time { return testNow }),
		WithIDs(id.NewGeneratorWithSeed(1, func() time.Time { return testNow })),
	}
	l, err := New(Config{
		Symbol:      "BTC/USDT",
		InitialCash: 1000,
		TradeSize:   testTradeSize,
		FeeRate:     testFee,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return l, j
}

func buy(t *testing.T, l *Ledger, price float64) Fill {
	t.Helper()
	f, err := l.Execute(price, Buy, testTradeSize, testFee)
	require.NoError(t, err)
	return f
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing symbol", Config{TradeSize: 1}},
		{"zero size", Config{Symbol: "X"}},
		{"nan size", Config{Symbol: "X", TradeSize: math.NaN()}},
		{"negative fee", Config{Symbol: "X", TradeSize: 1, FeeRate: -0.1}},
		{"inf cash", Config{Symbol: "X", TradeSize: 1, InitialCash: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestExecuteBuySellCashConservation(t *testing.T) {
	l, j := newLedger(t)

	before := l.Cash()
	f := buy(t, l, 100)

	assert.InDelta(t, before-100*testTradeSize*(1+testFee), l.Cash(), 1e-12)
	assert.Equal(t, 1, l.OpenPositions())
	assert.Equal(t, Buy, f.Side)
	assert.InDelta(t, 100*testTradeSize*testFee, f.Cost, 1e-12)
	assert.Equal(t, l.Cash(), f.Cash)

	mid := l.Cash()
	s, err := l.Execute(100, Sell, testTradeSize, testFee)
	require.NoError(t, err)

	assert.InDelta(t, mid+100*testTradeSize*(1-testFee), l.Cash(), 1e-12)
	assert.Equal(t, 0, l.OpenPositions())
	assert.Equal(t, f.PositionID, s.PositionID)
	assert.Equal(t, ReasonSignalExit, s.Reason)

	trades := j.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "buy", trades[0].Side)
	assert.Equal(t, "sell", trades[1].Side)
	assert.Equal(t, "BTC/USDT", trades[1].Symbol)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
}

func TestExecuteMatchesReferenceArithmetic(t *testing.T) {
	l, _ := newLedger(t)

	buy(t, l, 100)
	afterBuy := 1000.0 - (100.0 * testTradeSize) - (100.0 * testTradeSize * testFee)
	assert.InDelta(t, afterBuy, l.Cash(), 1e-12)

	_, err := l.Execute(100, Sell, testTradeSize, testFee)
	require.NoError(t, err)
	afterSell := afterBuy + (100.0 * testTradeSize) - (100.0 * testTradeSize * testFee)
	assert.InDelta(t, afterSell, l.Cash(), 1e-12)
}

func TestExecuteSellWithoutPositionIsNoop(t *testing.T) {
	var buf bytes.Buffer
	l, j := newLedger(t, WithLogger(zerolog.New(&buf)))

	_, err := l.Execute(100, Sell, testTradeSize, testFee)
	assert.ErrorIs(t, err, ErrNoOpenPosition)
	assert.Equal(t, 1000.0, l.Cash())
	assert.Equal(t, 0, l.OpenPositions())
	assert.Equal(t, 1, l.Underflows())
	assert.Empty(t, j.Trades())
	assert.Contains(t, buf.String(), "sell with no open position ignored")
}

func TestExecuteSellIsLIFO(t *testing.T) {
	l, _ := newLedger(t)

	first := buy(t, l, 100)
	second := buy(t, l, 101)

	s, err := l.Execute(102, Sell, testTradeSize, testFee)
	require.NoError(t, err)
	assert.Equal(t, second.PositionID, s.PositionID)
	assert.InDelta(t, (102.0-101.0)/101.0, s.PnL, 1e-12)

	open := l.Positions()
	require.Len(t, open, 1)
	assert.Equal(t, first.PositionID, open[0].ID)
	assert.Equal(t, 100.0, open[0].EntryPrice)
}

func TestExecuteRejectsInvalidOrders(t *testing.T) {
	l, j := newLedger(t)

	tests := []struct {
		name  string
		price float64
		side  Side
		size  float64
		fee   float64
	}{
		{"zero size", 100, Buy, 0, testFee},
		{"negative size", 100, Buy, -1, testFee},
		{"zero price", 0, Buy, testTradeSize, testFee},
		{"nan price", math.NaN(), Buy, testTradeSize, testFee},
		{"inf price", math.Inf(1), Sell, testTradeSize, testFee},
		{"negative fee", 100, Buy, testTradeSize, -0.1},
		{"bad side", 100, Side("hold"), testTradeSize, testFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Execute(tt.price, tt.side, tt.size, tt.fee)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
	assert.Equal(t, 1000.0, l.Cash())
	assert.Equal(t, 0, l.OpenPositions())
	assert.Empty(t, j.Trades())
}

func TestRejectInsufficientCash(t *testing.T) {
	l, err := New(Config{
		Symbol:                 "BTC/USDT",
		InitialCash:            0.05,
		TradeSize:              testTradeSize,
		FeeRate:                testFee,
		RejectInsufficientCash: true,
	})
	require.NoError(t, err)

	_, err = l.Execute(100, Buy, testTradeSize, testFee)
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.Equal(t, 1, l.Rejections())
	assert.Equal(t, 0.05, l.Cash())
	assert.Equal(t, 0, l.OpenPositions())
}

func TestCashMayGoNegativeByDefault(t *testing.T) {
	l, err := New(Config{Symbol: "BTC/USDT", InitialCash: 0.05, TradeSize: testTradeSize})
	require.NoError(t, err)

	_, err = l.Execute(100, Buy, testTradeSize, 0)
	require.NoError(t, err)
	assert.InDelta(t, -0.05, l.Cash(), 1e-12)
}

func TestCheckTPSLTakeProfit(t *testing.T) {
	l, j := newLedger(t)
	opened := buy(t, l, 100)
	pre := l.Cash()

	fills := l.CheckTPSL(102, testTP, testSL)

	require.Len(t, fills, 1)
	assert.Equal(t, ReasonTakeProfit, fills[0].Reason)
	assert.Equal(t, opened.PositionID, fills[0].PositionID)
	assert.Equal(t, 0, l.OpenPositions())

	// proceeds are the sale at the trigger bid net of the fee
	proceeds := 102*testTradeSize - 102*testTradeSize*testFee
	assert.InDelta(t, pre+proceeds, l.Cash(), tolerance)
	assert.InDelta(t, 0.02, fills[0].PnL, 1e-12)

	last := j.Trades()[len(j.Trades())-1]
	assert.Equal(t, "take_profit", last.Reason)
}

func TestCheckTPSLStopLoss(t *testing.T) {
	l, _ := newLedger(t)
	buy(t, l, 100)
	pre := l.Cash()

	fills := l.CheckTPSL(98, testTP, testSL)

	require.Len(t, fills, 1)
	assert.Equal(t, ReasonStopLoss, fills[0].Reason)
	assert.Equal(t, 0, l.OpenPositions())
	assert.InDelta(t, pre+98*testTradeSize*(1-testFee), l.Cash(), tolerance)
}

func TestCheckTPSLInsideBandKeepsPosition(t *testing.T) {
	l, _ := newLedger(t)
	buy(t, l, 100)
	pre := l.Cash()

	assert.Empty(t, l.CheckTPSL(100.5, testTP, testSL))
	assert.Empty(t, l.CheckTPSL(98.5, testTP, testSL))
	assert.Equal(t, 1, l.OpenPositions())
	assert.Equal(t, pre, l.Cash())
}

func TestCheckTPSLClosesExactlyOnePerTrigger(t *testing.T) {
	l, j := newLedger(t)
	a := buy(t, l, 100)
	b := buy(t, l, 100)
	c := buy(t, l, 101.5)

	fills := l.CheckTPSL(102, testTP, testSL)

	require.Len(t, fills, 2)
	assert.ElementsMatch(t, []string{a.PositionID, b.PositionID}, []string{fills[0].PositionID, fills[1].PositionID})

	open := l.Positions()
	require.Len(t, open, 1)
	assert.Equal(t, c.PositionID, open[0].ID)

	sells := 0
	for _, tr := range j.Trades() {
		if tr.Side == "sell" {
			sells++
		}
	}
	assert.Equal(t, 2, sells)
}

func TestCheckTPSLMixedTriggers(t *testing.T) {
	l, _ := newLedger(t)
	buy(t, l, 100)
	buy(t, l, 105)

	fills := l.CheckTPSL(102, testTP, testSL)

	require.Len(t, fills, 2)
	assert.Equal(t, ReasonTakeProfit, fills[0].Reason)
	assert.Equal(t, ReasonStopLoss, fills[1].Reason)
	assert.Equal(t, 0, l.OpenPositions())
}

func TestCheckTPSLOverlappingThresholdsClosesOnce(t *testing.T) {
	l, _ := newLedger(t)
	buy(t, l, 100)

	// tp=-1 and sl=-1 make every pnl qualify for both
	fills := l.CheckTPSL(100, -1, -1)
	require.Len(t, fills, 1)
	assert.Equal(t, 0, l.OpenPositions())
}

func TestCheckTPSLIgnoresBadBid(t *testing.T) {
	l, _ := newLedger(t)
	buy(t, l, 100)

	assert.Nil(t, l.CheckTPSL(math.NaN(), testTP, testSL))
	assert.Nil(t, l.CheckTPSL(0, testTP, testSL))
	assert.Equal(t, 1, l.OpenPositions())
}

func TestValue(t *testing.T) {
	l, _ := newLedger(t)
	assert.Equal(t, 1000.0, l.Value(100))

	buy(t, l, 100)
	v := l.Value(101)
	assert.Equal(t, l.Cash()+101*testTradeSize, v)
	assert.Equal(t, v, l.Value(101))
}

func TestPositionsReturnsCopy(t *testing.T) {
	l, _ := newLedger(t)
	buy(t, l, 100)

	ps := l.Positions()
	ps[0].EntryPrice = 1
	assert.Equal(t, 100.0, l.Positions()[0].EntryPrice)
}

func TestTradeLogFields(t *testing.T) {
	var buf bytes.Buffer
	l, _ := newLedger(t, WithLogger(zerolog.New(&buf)))
	buy(t, l, 100)

	sc := bufio.NewScanner(&buf)
	require.True(t, sc.Scan())
	var line map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &line))

	assert.Equal(t, "trade executed", line["message"])
	assert.Equal(t, "buy", line["action"])
	assert.Equal(t, "BTC/USDT", line["symbol"])
	assert.Equal(t, 100.0, line["price"])
	assert.Equal(t, testTradeSize, line["size"])
	assert.Contains(t, line, "cost")
	assert.Contains(t, line, "at")
	assert.Equal(t, "ledger", line["component"])
}
