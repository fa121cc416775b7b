// Package metrics exposes cage activity as Prometheus metrics.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "headfix"

// Trial outcomes.
const (
	OutcomeFixed     = "fixed"
	OutcomeNoFix     = "no_fix"
	OutcomeCheckFail = "check_failed"
	OutcomeAbandoned = "abandoned"
)

// Recorder holds the cage metrics.
type Recorder struct {
	registry *prometheus.Registry

	entries          prometheus.Counter
	entranceRewards  prometheus.Counter
	trials           *prometheus.CounterVec
	rewards          *prometheus.CounterVec
	valveOpenSeconds *prometheus.CounterVec
	stuck            prometheus.Counter
	rollovers        prometheus.Counter
	visitSeconds     prometheus.Histogram
	subjectsToday    prometheus.Gauge
}

// New registers the cage metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		entries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Chamber entries with a readable tag.",
		}),
		entranceRewards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entrance_rewards_total",
			Help:      "Entrance rewards granted.",
		}),
		trials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Contact-triggered trials by outcome.",
		}, []string{"outcome"}),
		rewards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_total",
			Help:      "Rewards dispensed by category.",
		}, []string{"category"}),
		valveOpenSeconds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valve_open_seconds_total",
			Help:      "Cumulative solenoid opening time by category.",
		}, []string{"category"}),
		stuck: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stuck_subjects_total",
			Help:      "Visits that exceeded the in-chamber time limit.",
		}),
		rollovers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_rollovers_total",
			Help:      "Day boundaries crossed since start.",
		}),
		visitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "visit_duration_seconds",
			Help:      "Time from entry to exit.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		subjectsToday: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subjects_today",
			Help:      "Distinct subjects seen in the current day.",
		}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Entry() {
	if r != nil {
		r.entries.Inc()
	}
}

func (r *Recorder) EntranceReward() {
	if r != nil {
		r.entranceRewards.Inc()
	}
}

// Trial counts one trial with one of the Outcome constants.
func (r *Recorder) Trial(outcome string) {
	if r != nil {
		r.trials.WithLabelValues(outcome).Inc()
	}
}

// Reward counts one dispense. It matches reward.WithObserver.
func (r *Recorder) Reward(category string, d time.Duration) {
	if r != nil {
		r.rewards.WithLabelValues(category).Inc()
		r.valveOpenSeconds.WithLabelValues(category).Add(d.Seconds())
	}
}

func (r *Recorder) Stuck() {
	if r != nil {
		r.stuck.Inc()
	}
}

func (r *Recorder) Rollover() {
	if r != nil {
		r.rollovers.Inc()
	}
}

func (r *Recorder) Visit(d time.Duration) {
	if r != nil {
		r.visitSeconds.Observe(d.Seconds())
	}
}

func (r *Recorder) SubjectsToday(n int) {
	if r != nil {
		r.subjectsToday.Set(float64(n))
	}
}
