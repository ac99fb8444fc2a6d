package metrics

import (
	coremetrics "github.com/medbox/dispenser/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records dispense results in Prometheus metrics.
type PromSink struct {
	dispenses *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	pills     *prometheus.CounterVec
}

// NewPromSink registers dispense metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispenses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medbox_dispense_results_total",
		Help: "Total number of dispense attempts by origin and outcome",
	}, []string{"origin", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medbox_dispense_ack_latency_seconds",
		Help:    "Time between command publish and device acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"origin"})
	pills := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medbox_pills_dispensed_total",
		Help: "Total number of pills released by origin",
	}, []string{"origin"})

	if err := reg.Register(dispenses); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			dispenses = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(pills); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			pills = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{dispenses: dispenses, latency: latency, pills: pills}, nil
}

// RecordDispense increments the counters for one dispense attempt.
func (s *PromSink) RecordDispense(res coremetrics.DispenseResult) error {
	origin := string(res.Origin)
	s.dispenses.WithLabelValues(origin, string(res.Outcome)).Inc()
	if res.Latency > 0 {
		s.latency.WithLabelValues(origin).Observe(res.Latency.Seconds())
	}
	if res.Outcome == "COMPLETED" && res.Pills > 0 {
		s.pills.WithLabelValues(origin).Add(float64(res.Pills))
	}
	return nil
}
