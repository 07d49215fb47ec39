// Package metrics defines the Prometheus collectors for mailsort runs and
// the HTTP handler that exposes them. The collectors are registered on the
// default registry at init; a one-shot run simply never serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSeen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_messages_seen_total",
			Help: "Total number of messages evaluated against the rule set",
		},
		[]string{"account", "mailbox"},
	)

	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_rule_matches_total",
			Help: "Total number of messages matched per rule",
		},
		[]string{"account", "rule"},
	)

	ActionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_action_failures_total",
			Help: "Total number of failed filing actions",
		},
		[]string{"account", "action"},
	)

	PartialMoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_partial_moves_total",
			Help: "Total number of moves that copied but failed to mark the source deleted",
		},
		[]string{"account"},
	)

	MessagesExpunged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_messages_expunged_total",
			Help: "Total number of messages removed by the end-of-run expunge",
		},
		[]string{"account", "mailbox"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsort_run_duration_seconds",
			Help:    "Duration of one mailbox processing run in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
		},
		[]string{"account", "mailbox", "status"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsort_runs_total",
			Help: "Total number of processing runs by terminal status",
		},
		[]string{"account", "mailbox", "status"},
	)
)
