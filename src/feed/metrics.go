package feed

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts feed activity. A nil *Metrics records nothing.
type Metrics struct {
	open    prometheus.Gauge
	dials   prometheus.Counter
	retries prometheus.Counter
	updates *prometheus.CounterVec
}

// NewMetrics registers the feed collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "railbook",
			Subsystem: "feed",
			Name:      "open_channels",
			Help:      "Live remaining-seat channels currently open.",
		}),
		dials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "railbook",
			Subsystem: "feed",
			Name:      "dials_total",
			Help:      "Channel dial attempts.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "railbook",
			Subsystem: "feed",
			Name:      "reconnect_waits_total",
			Help:      "Backoff waits scheduled before a redial.",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "railbook",
			Subsystem: "feed",
			Name:      "updates_total",
			Help:      "Remaining-seat frames by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.open, m.dials, m.retries, m.updates)
	return m
}

func (m *Metrics) opened() {
	if m != nil {
		m.open.Inc()
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.open.Dec()
	}
}

func (m *Metrics) dialed() {
	if m != nil {
		m.dials.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) applied() {
	if m != nil {
		m.updates.WithLabelValues("applied").Inc()
	}
}

func (m *Metrics) stale() {
	if m != nil {
		m.updates.WithLabelValues("stale").Inc()
	}
}
