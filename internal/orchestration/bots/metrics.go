package bots

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tick results recorded in meetbot_ticks_total
const (
	tickOK            = "ok"
	tickCalendarError = "calendar_error"
	tickStoreError    = "store_error"
	tickPanic         = "panic"
)

// Metrics holds the orchestrator's prometheus collectors
type Metrics struct {
	ActiveBots        prometheus.Gauge
	Ticks             *prometheus.CounterVec
	CalendarErrors    *prometheus.CounterVec
	JoinAttempts      *prometheus.CounterVec
	JoinDuration      *prometheus.HistogramVec
	SessionsCompleted prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which keeps parallel tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveBots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetbot_active_bots",
			Help: "Number of workspace bots currently polling.",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetbot_ticks_total",
			Help: "Polling ticks by result.",
		}, []string{"result"}),
		CalendarErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetbot_calendar_errors_total",
			Help: "Calendar fetch failures by kind.",
		}, []string{"kind"}),
		JoinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetbot_join_attempts_total",
			Help: "Join attempts by platform and result.",
		}, []string{"platform", "result"}),
		JoinDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetbot_join_duration_seconds",
			Help:    "Time from join attempt to admission or failure.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"platform"}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_sessions_completed_total",
			Help: "Sessions that reached completed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ActiveBots,
			m.Ticks,
			m.CalendarErrors,
			m.JoinAttempts,
			m.JoinDuration,
			m.SessionsCompleted,
		)
	}
	return m
}
