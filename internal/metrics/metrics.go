// Package metrics exposes prometheus counters for the sync loops, the Web
// API client and the bridge.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Logger("metrics")

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry
	polls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bridge   *prometheus.CounterVec
}

// New registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "flyover_polls_total", Help: "Sync loop polls by loop and outcome"},
			[]string{"loop", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flyover_api_request_duration_seconds",
				Help:    "Web API request latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint", "status"},
		),
		bridge: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "flyover_bridge_messages_total", Help: "Bridge messages by result"},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(m.polls, m.latency, m.bridge)
	return m
}

// ObservePoll counts one sync loop iteration.
func (m *Metrics) ObservePoll(loop, outcome string) {
	m.polls.WithLabelValues(loop, outcome).Inc()
}

// ObserveRequest records one Web API round trip. Status 0 means the request
// never got a response.
func (m *Metrics) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	m.latency.WithLabelValues(endpoint, statusClass(status)).Observe(elapsed.Seconds())
}

// ObserveForward counts a bridge message as forwarded or dropped.
func (m *Metrics) ObserveForward(delivered bool) {
	result := "forwarded"
	if !delivered {
		result = "dropped"
	}
	m.bridge.WithLabelValues(result).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infow("metrics listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
