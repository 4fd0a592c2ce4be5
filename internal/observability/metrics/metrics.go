package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommunicationMetrics exposes counters/histograms for patient notification flows.
type CommunicationMetrics struct {
	outboundTotal   *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	inboundTotal    *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	resumeAttempts  *prometheus.CounterVec
	resumeJobs      *prometheus.CounterVec
	flowRuns        *prometheus.CounterVec
}

func NewCommunicationMetrics(reg prometheus.Registerer) *CommunicationMetrics {
	m := &CommunicationMetrics{
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Subsystem: "communication",
			Name:      "outbound_total",
			Help:      "Outbound messages and calls by channel and outcome",
		}, []string{"channel", "outcome"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Subsystem: "communication",
			Name:      "status_transitions_total",
			Help:      "Status updates applied to messages and calls",
		}, []string{"entity", "status", "applied"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound provider webhooks by event type and outcome",
		}, []string{"event_type", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notify",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of provider webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		resumeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Subsystem: "resume",
			Name:      "attempts_total",
			Help:      "Resume webhook HTTP attempts by outcome",
		}, []string{"outcome"}),
		resumeJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Subsystem: "resume",
			Name:      "jobs_total",
			Help:      "Resume jobs processed by the worker by outcome",
		}, []string{"outcome"}),
		flowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Subsystem: "flows",
			Name:      "runs_total",
			Help:      "Flow handler executions by flow and outcome",
		}, []string{"flow_id", "channel", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outboundTotal, m.transitionTotal, m.inboundTotal, m.webhookLatency, m.resumeAttempts, m.resumeJobs, m.flowRuns)
	return m
}

func (m *CommunicationMetrics) ObserveOutbound(channel, outcome string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *CommunicationMetrics) ObserveTransition(entity, status string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.transitionTotal.WithLabelValues(entity, status, label).Inc()
}

func (m *CommunicationMetrics) ObserveInbound(eventType, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *CommunicationMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *CommunicationMetrics) ObserveResumeAttempt(outcome string) {
	if m == nil {
		return
	}
	m.resumeAttempts.WithLabelValues(outcome).Inc()
}

func (m *CommunicationMetrics) ObserveResumeJob(outcome string) {
	if m == nil {
		return
	}
	m.resumeJobs.WithLabelValues(outcome).Inc()
}

func (m *CommunicationMetrics) ObserveFlowRun(flowID, channel, outcome string) {
	if m == nil {
		return
	}
	m.flowRuns.WithLabelValues(flowID, channel, outcome).Inc()
}
