package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/gauges for the scheduling flows.
type SchedulingMetrics struct {
	mutationsTotal  *prometheus.CounterVec
	mutationLatency *prometheus.HistogramVec
	fanoutClients   prometheus.Gauge
	broadcastsTotal *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "scheduling",
			Name:      "mutations_total",
			Help:      "Appointment mutations by operation and result",
		}, []string{"operation", "result"}),
		mutationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Subsystem: "scheduling",
			Name:      "mutation_latency_seconds",
			Help:      "Latency of appointment mutations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		fanoutClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crm",
			Subsystem: "fanout",
			Name:      "connected_clients",
			Help:      "Websocket clients currently subscribed to schedule updates",
		}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "fanout",
			Name:      "broadcasts_total",
			Help:      "Schedule update frames by outcome",
		}, []string{"outcome"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "outbound",
			Name:      "deliveries_total",
			Help:      "Outbound WhatsApp queue deliveries by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.mutationsTotal, m.mutationLatency, m.fanoutClients, m.broadcastsTotal, m.deliveriesTotal)
	return m
}

func (m *SchedulingMetrics) ObserveMutation(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(operation, result).Inc()
	m.mutationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.fanoutClients.Set(float64(n))
}

// ObserveBroadcast counts one frame per client: "sent" or "dropped".
func (m *SchedulingMetrics) ObserveBroadcast(outcome string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(status).Inc()
}
