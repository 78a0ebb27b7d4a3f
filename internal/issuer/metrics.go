package issuer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	issued   prometheus.Counter
	rejected *prometheus.CounterVec
	failures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Subsystem: "issuer",
			Name:      "tokens_issued_total",
			Help:      "Credentials handed out to callers.",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "livevoice",
				Subsystem: "issuer",
				Name:      "requests_rejected_total",
				Help:      "Token requests refused, by reason.",
			},
			[]string{"reason"},
		),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Subsystem: "issuer",
			Name:      "encode_failures_total",
			Help:      "Responses that could not be written.",
		}),
	}
	reg.MustRegister(m.issued, m.rejected, m.failures)
	return m
}
