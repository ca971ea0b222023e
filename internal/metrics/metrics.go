// Package metrics exposes Prometheus collectors for the adherence engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DosesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dosewise",
		Name:      "doses_recorded_total",
		Help:      "Dose events appended to the ledger, by outcome.",
	}, []string{"outcome"})

	RemindersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dosewise",
		Name:      "reminders_active",
		Help:      "Currently scheduled notification handles.",
	})

	SyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dosewise",
		Name:      "reminder_syncs_total",
		Help:      "Reminder reconciliation runs, by result.",
	}, []string{"result"})

	NotificationsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dosewise",
		Name:      "notifications_fired_total",
		Help:      "Notifications delivered by the local notifier, by kind.",
	}, []string{"kind"})

	ScanRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dosewise",
		Name:      "scan_requests_total",
		Help:      "Image recognition calls, by result.",
	}, []string{"result"})
)
