package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegistered(t *testing.T) {
	SnapshotsTotal.WithLabelValues("TEST/REG").Inc()
	SellUnderflowsTotal.WithLabelValues("TEST/REG").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["voitrader_snapshots_total"])
	assert.True(t, names["voitrader_sell_underflows_total"])
}

func TestHandlerServesMetrics(t *testing.T) {
	TradesTotal.WithLabelValues("TEST/HTTP", "buy", "entry").Inc()
	PortfolioValue.WithLabelValues("TEST/HTTP").Set(1000.5)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `voitrader_trades_total{reason="entry",side="buy",symbol="TEST/HTTP"} 1`)
	assert.Contains(t, string(body), `voitrader_portfolio_value{symbol="TEST/HTTP"} 1000.5`)
}

func TestNewServerAddr(t *testing.T) {
	s := NewServer(":9464")
	assert.Equal(t, ":9464", s.Addr)
	assert.NotNil(t, s.Handler)
}
