package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `id, position_id, symbol, side, size, price, entry_price, cost, cash, pnl_pct, reason, time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(s rowScanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.ID,
		&rec.PositionID,
		&rec.Symbol,
		&rec.Side,
		&rec.Size,
		&rec.Price,
		&rec.EntryPrice,
		&rec.Cost,
		&rec.Cash,
		&rec.PnLPct,
		&rec.Reason,
		&rec.Time,
	)
	return rec, err
}

// GetTrade returns a single fill by ID.
func (j *SQLite) GetTrade(id string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", id)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListPositionTrades returns the opening and closing fills of one position.
func (j *SQLite) ListPositionTrades(positionID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+` FROM trades WHERE position_id = ? ORDER BY time ASC, id ASC`, positionID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListTradesBetween returns fills whose time is within [start, end).
func (j *SQLite) ListTradesBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListValuationsBetween returns valuations whose time is within [start, end).
func (j *SQLite) ListValuationsBetween(start, end time.Time) ([]ValuationRecord, error) {
	rows, err := j.db.Query(`
		SELECT time, symbol, bid, cash, open_positions, value
		FROM valuations
		WHERE time >= ? AND time < ?
		ORDER BY time ASC;`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValuationRecord
	for rows.Next() {
		var rec ValuationRecord
		if err := rows.Scan(
			&rec.Time,
			&rec.Symbol,
			&rec.Bid,
			&rec.Cash,
			&rec.OpenPositions,
			&rec.Value,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
