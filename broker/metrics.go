package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

const (
	outcomeSuccess   = "success"
	outcomeRejected  = "rejected"
	outcomeTransport = "transport"
)

type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bandgateway",
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Requests made to the context broker, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bandgateway",
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "Time taken for the context broker to respond.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(m.requests, m.duration)

	return m
}

func (m *Metrics) observe(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}

	outcome := outcomeSuccess

	if err != nil {
		if IsTransport(err) {
			outcome = outcomeTransport
		} else {
			outcome = outcomeRejected
		}
	}

	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}
