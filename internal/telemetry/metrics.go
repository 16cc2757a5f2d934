package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus instruments the gate pipeline and
// scheduler emit into. Grounded on the teacher's pkg/escalation and
// pkg/alert WebhookMetrics pattern: one struct of pre-registered vectors
// passed around by constructor injection rather than package globals.
type Metrics struct {
	GateDuration      *prometheus.HistogramVec // gateId
	GateOutcome       *prometheus.CounterVec   // gateId, status, action
	SSRFDenied        *prometheus.CounterVec   // reason
	SchedulerTick     *prometheus.CounterVec   // jobId, result
	SchedulerDuration *prometheus.HistogramVec // jobId
	Regenerations     prometheus.Histogram
	ProviderCalls     *prometheus.CounterVec // provider, outcome
}

// NewMetrics constructs and registers all instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novaos_gate_duration_seconds",
			Help:    "Per-gate execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gate_id"}),
		GateOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novaos_gate_outcome_total",
			Help: "Gate outcomes by status and action.",
		}, []string{"gate_id", "status", "action"}),
		SSRFDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novaos_ssrf_denied_total",
			Help: "SSRF guard denials by reason.",
		}, []string{"reason"}),
		SchedulerTick: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novaos_scheduler_tick_total",
			Help: "Scheduler job tick outcomes.",
		}, []string{"job_id", "result"}),
		SchedulerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novaos_scheduler_job_duration_seconds",
			Help:    "Scheduler job handler execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_id"}),
		Regenerations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "novaos_regeneration_count",
			Help:    "Regenerations performed per request.",
			Buckets: []float64{0, 1, 2},
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novaos_llm_provider_calls_total",
			Help: "LLM provider calls by outcome.",
		}, []string{"provider", "outcome"}),
	}

	reg.MustRegister(
		m.GateDuration, m.GateOutcome, m.SSRFDenied,
		m.SchedulerTick, m.SchedulerDuration, m.Regenerations, m.ProviderCalls,
	)
	return m
}
