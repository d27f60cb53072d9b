package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func bookServer(t *testing.T, messages []string, closeNormally bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if closeNormally {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_, _, _ = conn.ReadMessage()
		}
	}))
}

func TestWebSocketDeliversBooks(t *testing.T) {
	srv := bookServer(t, []string{
		`{"symbol":"BTC/USDT","time":1709294400000,"bids":[[100,1.0],[99.5,2]],"asks":[[100.02,0.5]]}`,
		`not json`,
		`{"time":1709294401000,"bids":[[100.01,0.4]],"asks":[[100.03,1.5]],"last":100.02}`,
	}, true)
	defer srv.Close()

	ctx := context.Background()
	pipe := NewPipe(8, 0)
	ws := &WebSocket{URL: wsURL(srv), Symbol: "BTC/USDT", Log: zerolog.Nop()}
	require.NoError(t, Pump(ctx, ws, pipe))

	b, err := pipe.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", b.Symbol)
	assert.Equal(t, time.UnixMilli(1709294400000).UTC(), b.Time)
	require.Len(t, b.Bids, 2)
	assert.Equal(t, 99.5, b.Bids[1].Price)
	assert.Equal(t, 0.5, b.Asks[0].Amount)

	b, err = pipe.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", b.Symbol, "falls back to the configured symbol")
	assert.Equal(t, 100.02, b.LastPrice)

	_, err = pipe.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocketAbruptDisconnectIsAnError(t *testing.T) {
	srv := bookServer(t, []string{`{"bids":[[100,1]],"asks":[[100.02,1]]}`}, false)
	defer srv.Close()

	pipe := NewPipe(8, 0)
	ws := &WebSocket{URL: wsURL(srv), Symbol: "BTC/USDT", Log: zerolog.Nop()}
	err := ws.Run(context.Background(), pipe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket feed")
}

func TestWebSocketRequiresURL(t *testing.T) {
	ws := &WebSocket{Log: zerolog.Nop()}
	assert.Error(t, ws.Run(context.Background(), NewPipe(1, 0)))
}

func TestWebSocketReconnectStopsOnCancel(t *testing.T) {
	srv := bookServer(t, nil, false)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	ws := &WebSocket{URL: wsURL(srv), Reconnect: true, Log: zerolog.Nop()}
	err := ws.Run(ctx, NewPipe(1, 0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffAfter(t *testing.T) {
	base := time.Second

	assert.Equal(t, base, backoffAfter(0, base, false), "first failure waits base")
	assert.Equal(t, 1800*time.Millisecond, backoffAfter(base, base, false))
	assert.Equal(t, wsMaxBackoff, backoffAfter(25*time.Second, base, false))
	assert.Equal(t, wsMaxBackoff, backoffAfter(wsMaxBackoff, base, false))
	assert.Equal(t, base, backoffAfter(wsMaxBackoff, base, true), "a productive connection starts over")
}

func TestWebSocketReconnectsAfterDelivering(t *testing.T) {
	// Each connection delivers one book then drops without a close frame.
	srv := bookServer(t, []string{`{"bids":[[100,1]],"asks":[[100.02,1]]}`}, false)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe := NewPipe(16, 0)
	ws := &WebSocket{URL: wsURL(srv), Symbol: "BTC/USDT", Reconnect: true, Backoff: 10 * time.Millisecond, Log: zerolog.Nop()}
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx, pipe) }()

	for i := 0; i < 4; i++ {
		nextCtx, nextCancel := context.WithTimeout(ctx, 2*time.Second)
		b, err := pipe.Next(nextCtx)
		nextCancel()
		require.NoError(t, err, "book %d", i)
		assert.Equal(t, 100.0, b.Bids[0].Price)
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket feed did not stop on cancel")
	}
}
