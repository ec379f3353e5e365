package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

const namespace = "sentinel"

// Metrics groups the engine counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	findings     *prometheus.CounterVec
	kindErrors   *prometheus.CounterVec
	remediations *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	degraded     *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans run, by provider and mode.",
		}, []string{"provider", "mode"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_detected_total",
			Help:      "Findings reported by scans, by severity.",
		}, []string{"severity"}),
		kindErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_kind_errors_total",
			Help:      "Resource kind enumerations that failed during a live scan.",
		}, []string{"kind"}),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediations_total",
			Help:      "Remediation attempts, by outcome.",
		}, []string{"outcome", "simulated"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert sends, by channel and result.",
		}, []string{"channel", "result"}),
		degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_degraded",
			Help:      "1 when a component runs in its degraded fallback mode.",
		}, []string{"component"}),
	}

	m.registry.MustRegister(
		m.scans, m.findings, m.kindErrors, m.remediations, m.alerts, m.degraded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveScan(provider domain.Provider, mode string, findings []domain.Finding, kindErrors map[domain.ResourceKind]error) {
	m.scans.WithLabelValues(string(provider), mode).Inc()
	for _, f := range findings {
		m.findings.WithLabelValues(f.Severity.String()).Inc()
	}
	for kind := range kindErrors {
		m.kindErrors.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) ObserveRemediation(outcome domain.Outcome, simulated bool) {
	m.remediations.WithLabelValues(string(outcome), strconv.FormatBool(simulated)).Inc()
}

func (m *Metrics) ObserveAlerts(results map[string]bool) {
	for channel, ok := range results {
		result := "failure"
		if ok {
			result = "success"
		}
		m.alerts.WithLabelValues(channel, result).Inc()
	}
}

func (m *Metrics) SetCapability(component string, c domain.Capability) {
	value := 0.0
	if !c.IsLive() {
		value = 1
	}
	m.degraded.WithLabelValues(component).Set(value)
}
