package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the Controller's Prometheus instruments: round throughput
// and duration, sampler starvations, and the estimate/CI, which are set
// once when the run reaches FINAL.
type metrics struct {
	roundsTotal   prometheus.Counter
	roundDuration prometheus.Histogram
	starvations   prometheus.Counter
	estimate      prometheus.Gauge
	estimateError prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		roundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sampctl_rounds_total",
			Help: "Number of sampling rounds submitted to the external runtime.",
		}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sampctl_round_duration_seconds",
			Help:    "Wall-clock duration of a sampling round.",
			Buckets: prometheus.DefBuckets,
		}),
		starvations: factory.NewCounter(prometheus.CounterOpts{
			Name: "sampctl_sampler_starvations_total",
			Help: "Number of rounds where the sampler could not fill its requested budget.",
		}),
		estimate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sampctl_estimate",
			Help: "Most recent stratified-sum point estimate.",
		}),
		estimateError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sampctl_estimate_error",
			Help: "Most recent 95% confidence interval half-width.",
		}),
	}
}
