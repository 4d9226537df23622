package loop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the daemon's Prometheus instrumentation.
type Metrics struct {
	Processed     *prometheus.CounterVec
	BackoffTotal  prometheus.Counter
	IdleActions   prometheus.Counter
	InFlight      prometheus.Gauge
	QueueEligible prometheus.Gauge
}

// NewMetrics registers the daemon metrics on the given registerer. Pass a
// fresh registry in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devloop_requests_processed_total",
			Help: "Phase attempts by outcome.",
		}, []string{"outcome"}),
		BackoffTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "devloop_backoff_windows_total",
			Help: "Global backoff windows entered after transient failures.",
		}),
		IdleActions: factory.NewCounter(prometheus.CounterOpts{
			Name: "devloop_idle_actions_total",
			Help: "Maintenance actions run while the queue was empty.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devloop_request_in_flight",
			Help: "ID of the request currently being processed, 0 when idle.",
		}),
		QueueEligible: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devloop_queue_has_work",
			Help: "1 when the last poll found an eligible request.",
		}),
	}
}
