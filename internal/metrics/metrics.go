// Package metrics defines Prometheus collectors for the reminder pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zlot"

// Reminder delivery metrics
var (
	RemindersSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Total number of reminder emails successfully sent",
		},
		[]string{"kind"},
	)

	ReminderSendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_send_failures_total",
			Help:      "Total number of failed reminder send attempts",
		},
		[]string{"kind", "error"},
	)

	SMTPSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "smtp_send_duration_seconds",
			Help:      "Wall time of one full SMTP send exchange",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)
)

// Scheduler metrics
var (
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Total number of reminder passes, by outcome",
		},
		[]string{"status"},
	)
)
