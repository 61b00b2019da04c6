// Package metrics exposes client-side counters for the control daemon's
// /metrics endpoint. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rollcall/internal/apperr"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	polls          *prometheus.CounterVec
	pollStale      *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// New registers the collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_polls_total",
			Help: "Poll fetches by poller and result.",
		}, []string{"poller", "result"}),
		pollStale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_poll_stale_total",
			Help: "Poll responses discarded because a newer fetch had been issued.",
		}, []string{"poller"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_submissions_total",
			Help: "Capture submissions by kind and outcome.",
		}, []string{"kind", "result"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollcall_submit_duration_seconds",
			Help:    "Time from capture start to server answer.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 15},
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_transitions_total",
			Help: "State machine phase changes.",
		}, []string{"from", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_control_requests_total",
			Help: "Control API requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.polls, m.pollStale, m.submissions, m.submitDuration, m.transitions, m.httpRequests,
	)
	return m
}

// Poll counts one finished fetch. result is ok, error, skipped or discarded.
func (m *Metrics) Poll(poller, result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(poller, result).Inc()
}

// Stale counts one out-of-order response that was dropped.
func (m *Metrics) Stale(poller string) {
	if m == nil {
		return
	}
	m.pollStale.WithLabelValues(poller).Inc()
	m.polls.WithLabelValues(poller, "stale").Inc()
}

// Submission records the outcome and latency of a capture submission.
func (m *Metrics) Submission(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	m.submissions.WithLabelValues(kind, result).Inc()
	m.submitDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Transition counts a phase change.
func (m *Metrics) Transition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Request counts one control API request.
func (m *Metrics) Request(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
