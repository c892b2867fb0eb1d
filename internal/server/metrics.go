package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry            *prometheus.Registry
	connectTotal        *prometheus.CounterVec
	mintTotal           *prometheus.CounterVec
	networkChangesTotal prometheus.Counter
	inflight            prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	connect := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicnft_connect_total",
		Help: "Wallet connection attempts by connector and result",
	}, []string{"connector", "result"})

	mint := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicnft_mint_total",
		Help: "Mint attempts by result",
	}, []string{"result"})

	network := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "epicnft_network_changes_total",
		Help: "Network changes that reset the connection",
	})

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "epicnft_workflows_inflight",
		Help: "Workflows currently running",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(connect, mint, network, inflight)

	return &metricsRegistry{
		registry:            r,
		connectTotal:        connect,
		mintTotal:           mint,
		networkChangesTotal: network,
		inflight:            inflight,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incConnect(connector, result string) {
	m.connectTotal.WithLabelValues(connector, result).Inc()
}

func (m *metricsRegistry) incMint(result string) {
	m.mintTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incNetworkChange() {
	m.networkChangesTotal.Inc()
}

func (m *metricsRegistry) setInflight(n int64) {
	m.inflight.Set(float64(n))
}
