package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/voitrader/market"
)

// Replay publishes snapshots recorded in a CSV file.
//
// Row format (header optional, detected by a first column named "time"):
//
//	time,bids,asks[,last]
//
// time is RFC3339 or unix milliseconds. bids and asks are best-first levels
// written price:amount and separated by ';'. An empty side is allowed and
// reaches the engine as an empty book side.
type Replay struct {
	Path     string
	Symbol   string
	Interval time.Duration // pause between snapshots, 0 for none
	Log      zerolog.Logger
}

func (r *Replay) Run(ctx context.Context, sink Sink) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	n := 0
	err = ReadBooks(f, r.Symbol, func(b market.Book) error {
		if n > 0 && r.Interval > 0 {
			select {
			case <-time.After(r.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		n++
		return sink.Publish(ctx, b)
	})
	if err != nil {
		return err
	}
	r.Log.Info().Str("path", r.Path).Int("snapshots", n).Msg("replay finished")
	return nil
}

// ReadBooks parses replay CSV from rd and calls fn for each row in order.
func ReadBooks(rd io.Reader, symbol string, fn func(market.Book) error) error {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		line++
		if len(row) == 0 {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		b, err := parseRow(row, symbol)
		if err != nil {
			return fmt.Errorf("replay row %d: %w", line, err)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}

func parseRow(row []string, symbol string) (market.Book, error) {
	if len(row) < 3 {
		return market.Book{}, fmt.Errorf("need at least 3 cols time,bids,asks: %v", row)
	}

	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Book{}, err
	}
	bids, err := parseLevels(row[1])
	if err != nil {
		return market.Book{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(row[2])
	if err != nil {
		return market.Book{}, fmt.Errorf("asks: %w", err)
	}

	b := market.Book{Symbol: symbol, Time: t, Bids: bids, Asks: asks}
	if len(row) >= 4 && strings.TrimSpace(row[3]) != "" {
		last, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return market.Book{}, fmt.Errorf("bad last %q: %w", row[3], err)
		}
		b.LastPrice = last
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t, nil
}

func parseLevels(s string) ([]market.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	levels := make([]market.Level, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		price, amount, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("bad level %q (want price:amount)", p)
		}
		px, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", price, err)
		}
		amt, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount, err)
		}
		levels = append(levels, market.Level{Price: px, Amount: amt})
	}
	return levels, nil
}
