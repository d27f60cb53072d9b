package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader     = []string{"id", "position_id", "symbol", "side", "size", "price", "entry_price", "cost", "cash", "pnl_pct", "reason", "time"}
	valuationHeader = []string{"time", "symbol", "bid", "cash", "open_positions", "value"}
)

type CSVJournal struct {
	trades     *csv.Writer
	valuations *csv.Writer
	tf, vf     *os.File
}

func NewCSV(tradesPath, valuationsPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	vf, err := os.Create(valuationsPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSVJournal{
		trades:     csv.NewWriter(tf),
		valuations: csv.NewWriter(vf),
		tf:         tf,
		vf:         vf,
	}
	if err := j.write(j.trades, tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.valuations, valuationHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return j.write(j.trades, []string{
		t.ID,
		t.PositionID,
		t.Symbol,
		t.Side,
		f(t.Size),
		f(t.Price),
		f(t.EntryPrice),
		f(t.Cost),
		f(t.Cash),
		f(t.PnLPct),
		t.Reason,
		t.Time.UTC().Format(time.RFC3339Nano),
	})
}

func (j *CSVJournal) RecordValuation(v ValuationRecord) error {
	return j.write(j.valuations, []string{
		v.Time.UTC().Format(time.RFC3339Nano),
		v.Symbol,
		f(v.Bid),
		f(v.Cash),
		strconv.Itoa(v.OpenPositions),
		f(v.Value),
	})
}

// write flushes per row so a crash never loses an audited fill.
func (j *CSVJournal) write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.valuations.Flush()
	if err := j.valuations.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.vf.Close()
}

// f keeps enough digits for fee-sized amounts on 0.001 lots.
func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 8, 64)
}
