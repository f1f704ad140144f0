package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"tangled.sh/tangled.sh/elevator/elevator/workflow"
)

type Metrics struct {
	deliveries  *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "elevator_webhook_deliveries_total",
			Help: "Total number of webhook deliveries by event and outcome",
		}, []string{"event", "outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "elevator_transitions_total",
			Help: "Total number of elevation status transitions by target status",
		}, []string{"to"}),
	}
}

func (m *Metrics) Delivery(event, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(event, outcome).Inc()
}

// Outcome counts the status transition an outcome stands for, if any.
func (m *Metrics) Outcome(o workflow.Outcome) {
	if m == nil {
		return
	}
	switch o {
	case workflow.OutcomePending:
		m.transitions.WithLabelValues("pending").Inc()
	case workflow.OutcomeElevated:
		m.transitions.WithLabelValues("elevated").Inc()
	case workflow.OutcomeDemoted:
		m.transitions.WithLabelValues("demoted").Inc()
	}
}
