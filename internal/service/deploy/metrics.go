package deploy

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hangar-sh/hangar/internal/apperr"
)

// metrics counts orchestrated operations by outcome.
type metrics struct {
	operations *prometheus.CounterVec
}

func newMetrics() *metrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hangar",
		Subsystem: "deploy",
		Name:      "operations_total",
		Help:      "Count of orchestrated operations by outcome",
	}, []string{"operation", "outcome"})

	if err := prometheus.Register(operations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			operations = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return &metrics{operations: operations}
}

func (m *metrics) record(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(apperr.CodeOf(err))
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}
