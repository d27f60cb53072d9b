package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/voitrader/market"
	"github.com/rustyeddy/voitrader/metrics"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 30 * time.Second
	wsPingPeriod       = 15 * time.Second
	wsWriteWait        = 5 * time.Second
	wsBackoff          = time.Second
	wsMaxBackoff       = 30 * time.Second
)

// bookMessage is one snapshot on the wire. Levels are [price, amount] pairs
// and time is unix milliseconds.
type bookMessage struct {
	Symbol string       `json:"symbol"`
	Time   int64        `json:"time"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
	Last   float64      `json:"last"`
}

func (m bookMessage) book(fallbackSymbol string) market.Book {
	b := market.Book{
		Symbol:    m.Symbol,
		Bids:      toLevels(m.Bids),
		Asks:      toLevels(m.Asks),
		LastPrice: m.Last,
	}
	if b.Symbol == "" {
		b.Symbol = fallbackSymbol
	}
	if m.Time > 0 {
		b.Time = time.UnixMilli(m.Time).UTC()
	}
	return b
}

func toLevels(pairs [][2]float64) []market.Level {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]market.Level, len(pairs))
	for i, p := range pairs {
		out[i] = market.Level{Price: p[0], Amount: p[1]}
	}
	return out
}

// WebSocket reads JSON order-book snapshots from a websocket endpoint.
// A normal close from the server ends the stream. Other disconnects are
// returned, or retried with backoff when Reconnect is set.
type WebSocket struct {
	URL       string
	Symbol    string
	Reconnect bool
	Log       zerolog.Logger

	// ReadTimeout bounds the wait for any frame, pongs included.
	ReadTimeout time.Duration
	// Backoff is the first reconnect delay, 1s when zero.
	Backoff time.Duration
}

func (w *WebSocket) Run(ctx context.Context, sink Sink) error {
	if w.URL == "" {
		return fmt.Errorf("websocket feed requires a url")
	}
	base := w.Backoff
	if base <= 0 {
		base = wsBackoff
	}
	var delay time.Duration

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := w.consume(ctx, sink)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if !w.Reconnect || errors.Is(err, ErrClosed) {
			return fmt.Errorf("websocket feed: %w", err)
		}
		delay = backoffAfter(delay, base, n > 0)
		w.Log.Warn().Err(err).Str("url", w.URL).Int("delivered", n).Dur("backoff", delay).Msg("websocket feed disconnected, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoffAfter returns the delay before the next dial. A connection that
// delivered at least one snapshot starts over at base; repeated failures grow
// the delay by 1.8x up to wsMaxBackoff.
func backoffAfter(prev, base time.Duration, delivered bool) time.Duration {
	if delivered || prev <= 0 {
		return base
	}
	return time.Duration(math.Min(float64(wsMaxBackoff), float64(prev)*1.8))
}

// consume reports how many snapshots it published and returns a nil error
// when the server closes the stream normally.
func (w *WebSocket) consume(ctx context.Context, sink Sink) (int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	w.Log.Info().Str("url", w.URL).Str("symbol", w.Symbol).Msg("connected market data feed")

	readTimeout := w.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = wsReadTimeout
	}
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					w.Log.Warn().Err(err).Msg("websocket ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	// Unblock ReadMessage on cancellation.
	go func() {
		<-pingCtx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	n := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return n, nil
			}
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			return n, err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg bookMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.Log.Warn().Err(err).Msg("failed to decode book message")
			metrics.FeedErrorsTotal.WithLabelValues(w.Symbol, "decode").Inc()
			continue
		}
		if err := sink.Publish(ctx, msg.book(w.Symbol)); err != nil {
			return n, err
		}
		n++
	}
}
