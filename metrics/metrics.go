// Package metrics exposes Prometheus instruments for the evaluation loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_snapshots_total", Help: "Order book snapshots evaluated"},
		[]string{"symbol"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_trades_total", Help: "Fills executed by the ledger"},
		[]string{"symbol", "side", "reason"},
	)
	RiskExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_risk_exits_total", Help: "Positions closed by take-profit or stop-loss"},
		[]string{"symbol", "reason"},
	)
	SkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_skips_total", Help: "Ticks where no trade was evaluated, by cause"},
		[]string{"symbol", "reason"},
	)
	SellUnderflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_sell_underflows_total", Help: "Sells attempted with no open position"},
		[]string{"symbol"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_rejections_total", Help: "Orders refused by the ledger"},
		[]string{"symbol", "reason"},
	)
	FeedErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "voitrader_feed_errors_total", Help: "Feed messages dropped or stale windows, by kind"},
		[]string{"symbol", "kind"},
	)
	PortfolioValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "voitrader_portfolio_value", Help: "Cash plus open positions marked at the bid"},
		[]string{"symbol"},
	)
	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "voitrader_open_positions", Help: "Open positions held by the ledger"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		SnapshotsTotal,
		TradesTotal,
		RiskExitsTotal,
		SkipsTotal,
		SellUnderflowsTotal,
		RejectionsTotal,
		FeedErrorsTotal,
		PortfolioValue,
		OpenPositions,
	)
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// NewServer builds, but does not start, the metrics HTTP server.
func NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
