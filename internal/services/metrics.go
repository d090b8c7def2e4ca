// Package services – domain metrics
//
// Counters for ledger, gate, and reconciliation activity. They are registered
// on the default Prometheus registry and exposed by the /metrics route next to
// the HTTP metrics.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	creditsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_credits_consumed_total",
			Help: "Credits consumed from the ledger, by credit type.",
		},
		[]string{"type"},
	)
	creditsGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_credits_granted_total",
			Help: "Credits granted to the ledger, by credit type.",
		},
		[]string{"type"},
	)
	contactDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_contact_decisions_total",
			Help: "Contact gate outcomes, by contact type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_reconcile_total",
			Help: "Payment reconciliation results, by purchase kind and result.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(creditsConsumed, creditsGranted, contactDecisions, reconcileTotal)
}
