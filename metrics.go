package cookiechain

import (
	"errors"
	"strconv"

	"github.com/always-cache/cookie-chain/policy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus metrics about cookie resolutions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	resolutionsTotal *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	cycleSkipsTotal  prometheus.Counter
	executionsTotal  *prometheus.CounterVec
}

// NewMetrics registers the resolver metrics on the given registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		resolutionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiechain_resolutions_total",
				Help: "Total number of cookie resolutions by result",
			},
			[]string{"result"},
		),
		decisionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiechain_resend_decisions_total",
				Help: "Total number of resend decisions by trigger",
			},
			[]string{"trigger", "resend"},
		),
		cycleSkipsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "cookiechain_cycle_skips_total",
				Help: "Total number of resends skipped because the request was already in the chain",
			},
		),
		executionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiechain_dependency_executions_total",
				Help: "Total number of dependent request executions by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) recordResolution(err error) {
	if m == nil {
		return
	}
	result := "ok"
	var e *Error
	if errors.As(err, &e) {
		result = string(e.Kind)
	} else if err != nil {
		result = "error"
	}
	m.resolutionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordDecision(trigger policy.Trigger, resend bool) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(trigger.String(), strconv.FormatBool(resend)).Inc()
}

func (m *Metrics) recordCycleSkip() {
	if m == nil {
		return
	}
	m.cycleSkipsTotal.Inc()
}

func (m *Metrics) recordExecution(result string) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(result).Inc()
}
