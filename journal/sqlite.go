package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores times in UTC so range queries compare consistently.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, position_id, symbol, side, size, price, entry_price, cost, cash, pnl_pct, reason, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PositionID, t.Symbol, t.Side, t.Size, t.Price,
		t.EntryPrice, t.Cost, t.Cash, t.PnLPct, t.Reason, t.Time.UTC(),
	)
	return err
}

func (j *SQLite) RecordValuation(v ValuationRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO valuations
		(time, symbol, bid, cash, open_positions, value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.Time.UTC(), v.Symbol, v.Bid, v.Cash, v.OpenPositions, v.Value,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
