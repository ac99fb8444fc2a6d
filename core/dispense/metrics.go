package dispense

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispensesTotal *prometheus.CounterVec
	ackLatency     *prometheus.HistogramVec
	publishSuccess prometheus.Counter
	publishFailure prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Counter) {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispenses_total",
			Help: "Number of dispense attempts by origin and outcome",
		},
		[]string{"origin", "outcome"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispense_ack_latency_seconds",
			Help:    "Latency of dispense commands from publish to acknowledgment",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"origin"},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_publish_success_total",
			Help: "Number of successful MQTT publish operations",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_publish_failure_total",
			Help: "Number of failed MQTT publish operations",
		},
	)
	return total, lat, suc, fail
}

func init() {
	dispensesTotal, ackLatency, publishSuccess, publishFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispense metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispensesTotal, ackLatency, publishSuccess, publishFailure)
}

// ResetMetrics reinitializes metric collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispensesTotal, ackLatency, publishSuccess, publishFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
