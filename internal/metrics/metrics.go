package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal is a counter for delivery runs, by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsanotifier_runs_total",
			Help: "The total number of delivery runs by outcome.",
		},
		[]string{"status"},
	)

	// QuestionsDelivered is a counter for questions marked as delivered.
	QuestionsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsanotifier_questions_delivered_total",
			Help: "The total number of questions marked as delivered.",
		},
	)

	// SendsTotal is a counter for notification sends, by result.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsanotifier_sends_total",
			Help: "The total number of notification sends by result.",
		},
		[]string{"result"},
	)

	// RunDuration is a histogram of the time it takes to complete a run.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dsanotifier_run_duration_seconds",
			Help:    "A histogram of the delivery run duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	// QuestionsRemaining is a gauge of questions not yet delivered, as of the last run.
	QuestionsRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dsanotifier_questions_remaining",
			Help: "The number of questions not yet delivered.",
		},
	)
)
