package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects core counters for the dispatch and cancellation paths.
type Metrics struct {
	dispatches    *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	reconciles    *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_dispatches_total",
		Help: "Total builds dispatched into the runner, by run policy.",
	}, []string{"policy"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_cancellations_total",
		Help: "Total cancellations, by kind.",
	}, []string{"kind"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_schedule_rejections_total",
		Help: "Total schedule attempts the runner rejected, by job.",
	}, []string{"job"})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_param_reconciles_total",
		Help: "Total parameter reconciliations, by mode.",
	}, []string{"mode"})

	dispatches = registerCounterVec(registerer, dispatches)
	cancellations = registerCounterVec(registerer, cancellations)
	rejections = registerCounterVec(registerer, rejections)
	reconciles = registerCounterVec(registerer, reconciles)

	return &Metrics{
		dispatches:    dispatches,
		cancellations: cancellations,
		rejections:    rejections,
		reconciles:    reconciles,
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncDispatch(policy string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(policy).Inc()
}

func (m *Metrics) IncCancellation(kind string) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncScheduleRejection(job string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(job).Inc()
}

func (m *Metrics) IncReconcile(mode string) {
	if m == nil || m.reconciles == nil {
		return
	}
	m.reconciles.WithLabelValues(mode).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}
