package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atacado"

// ChatMetrics exposes counters/histograms for the chatbot and its side effects.
// All methods are safe to call on a nil receiver.
type ChatMetrics struct {
	turnsTotal       *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmLatency       prometheus.Histogram
	leadSinkTotal    *prometheus.CounterVec
	chatlogWrites    *prometheus.CounterVec
	outboxDeliveries *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns appended, by sender",
		}, []string{"sender"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "stage_transitions_total",
			Help:      "Conversation stage transitions",
		}, []string{"from", "to"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "llm_requests_total",
			Help:      "Completion requests by outcome (ok, fallback, suspicious)",
		}, []string{"outcome"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "llm_latency_seconds",
			Help:      "Latency of completion requests",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		leadSinkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_sink_total",
			Help:      "Lead sink deliveries by target and outcome",
		}, []string{"target", "outcome"}),
		chatlogWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chatlog_writes_total",
			Help:      "Conversation log inserts by outcome",
		}, []string{"outcome"}),
		outboxDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Outbox event deliveries by event type and outcome",
		}, []string{"type", "outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Chat sessions held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.stageTransitions, m.llmRequests, m.llmLatency,
		m.leadSinkTotal, m.chatlogWrites, m.outboxDeliveries, m.activeSessions)
	return m
}

func (m *ChatMetrics) ObserveTurn(sender string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(sender).Inc()
}

func (m *ChatMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(from, to).Inc()
}

func (m *ChatMetrics) ObserveLLM(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.llmLatency.Observe(elapsed.Seconds())
	}
}

func (m *ChatMetrics) ObserveLeadSink(target string, err error) {
	if m == nil {
		return
	}
	m.leadSinkTotal.WithLabelValues(target, outcome(err)).Inc()
}

func (m *ChatMetrics) ObserveChatlog(err error) {
	if m == nil {
		return
	}
	m.chatlogWrites.WithLabelValues(outcome(err)).Inc()
}

func (m *ChatMetrics) ObserveOutboxDelivery(eventType string, err error) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(eventType, outcome(err)).Inc()
}

func (m *ChatMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
