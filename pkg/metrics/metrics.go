// Package metrics provides Prometheus metrics for the ping-pong bot.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Cycle metrics
	TicksTotal    *prometheus.CounterVec
	TickDuration  prometheus.Histogram
	RoutesFound   *prometheus.GaugeVec
	SimulatedPerc *prometheus.GaugeVec

	// Swap metrics
	SwapsTotal    *prometheus.CounterVec
	RealizedPerc  *prometheus.GaugeVec
	BreakerTrips  *prometheus.CounterVec
	LastSwapStamp prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "jupiter_pingpong"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "ticks_total",
			Help:      "Total number of strategy ticks by final status",
		}, []string{"status"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "tick_duration_seconds",
			Help:      "Strategy tick duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RoutesFound: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "available_routes",
			Help:      "Routes returned by the last quote per side",
		}, []string{"side"}),
		SimulatedPerc: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "simulated_profit_percent",
			Help:      "Simulated profit of the last quote per side",
		}, []string{"side"}),

		SwapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "attempts_total",
			Help:      "Total number of swap attempts by side and result",
		}, []string{"side", "result"}),
		RealizedPerc: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "realized_profit_percent",
			Help:      "Realized profit of the last successful swap per side",
		}, []string{"side"}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips by breaker",
		}, []string{"breaker"}),
		LastSwapStamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful swap",
		}),

		registry: reg,
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuote records the outcome of a successful quote.
func (m *Metrics) RecordQuote(side types.Side, routes int, profit decimal.Decimal) {
	m.RoutesFound.WithLabelValues(side.String()).Set(float64(routes))
	m.SimulatedPerc.WithLabelValues(side.String()).Set(profit.InexactFloat64())
}

// RecordSwap records a swap attempt.
func (m *Metrics) RecordSwap(entry types.TradeEntry, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.SwapsTotal.WithLabelValues(entry.Side.String(), result).Inc()

	if err == nil {
		m.RealizedPerc.WithLabelValues(entry.Side.String()).Set(entry.Profit.InexactFloat64())
		m.LastSwapStamp.SetToCurrentTime()
	}
}

// RecordTick records a finished tick.
func (m *Metrics) RecordTick(status string, elapsed time.Duration) {
	m.TicksTotal.WithLabelValues(status).Inc()
	m.TickDuration.Observe(elapsed.Seconds())
}

// RecordBreakerTrip records a circuit breaker trip.
func (m *Metrics) RecordBreakerTrip(breaker string) {
	m.BreakerTrips.WithLabelValues(breaker).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
