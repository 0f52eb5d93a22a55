package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BacktestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtests_total", Help: "Backtest runs started, by candle source"},
		[]string{"source"},
	)
	TradesSimulatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_simulated_total", Help: "Closed simulated trades, by exit reason"},
		[]string{"reason"},
	)
	MonitorPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "monitor_polls_total", Help: "Live monitor poll cycles, by symbol"},
		[]string{"symbol"},
	)
	MonitorFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "monitor_fetch_errors_total", Help: "Failed candle fetches in the live monitor"},
		[]string{"symbol"},
	)
	MonitorSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "monitor_signals_total", Help: "Advisory signals emitted by the live monitor"},
		[]string{"symbol", "decision"},
	)
)

func init() {
	prometheus.MustRegister(
		BacktestsTotal,
		TradesSimulatedTotal,
		MonitorPollsTotal,
		MonitorFetchErrorsTotal,
		MonitorSignalsTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
