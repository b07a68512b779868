package sessionbridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes gateway counters. A nil *Metrics records nothing.
type Metrics struct {
	refreshes *prometheus.CounterVec
	replays   *prometheus.CounterVec
	teardowns *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	pending   prometheus.Gauge
	waiters   prometheus.Gauge
}

// NewMetrics creates the gateway collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionbridge_refresh_total",
			Help: "Session refresh calls by role and result.",
		}, []string{"role", "result"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionbridge_replay_total",
			Help: "Requests replayed after a refresh, by role and result.",
		}, []string{"role", "result"}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionbridge_teardown_total",
			Help: "Session teardowns by role and reason.",
		}, []string{"role", "reason"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionbridge_dropped_total",
			Help: "401 responses not retried because a refresh was already pending.",
		}, []string{"role"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionbridge_refresh_pending",
			Help: "1 while a session refresh is in flight.",
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionbridge_refresh_waiters",
			Help: "Requests blocked waiting on a session refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.replays, m.teardowns, m.dropped, m.pending, m.waiters)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) observeRefresh(role string, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(role, result(err)).Inc()
}

func (m *Metrics) observeReplay(role string, err error) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(role, result(err)).Inc()
}

func (m *Metrics) observeTeardown(role, reason string) {
	if m == nil {
		return
	}
	m.teardowns.WithLabelValues(role, reason).Inc()
}

func (m *Metrics) observeDropped(role string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(role).Inc()
}

func (m *Metrics) setPending(pending bool) {
	if m == nil {
		return
	}
	if pending {
		m.pending.Set(1)
	} else {
		m.pending.Set(0)
	}
}

func (m *Metrics) addWaiters(delta float64) {
	if m == nil {
		return
	}
	m.waiters.Add(delta)
}
