// Package metrics exposes the gateway's Prometheus counters. Collectors are
// registered on the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_decisions_total",
			Help: "Admission decisions by request class and outcome.",
		},
		[]string{"class", "outcome"},
	)

	denialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_denials_total",
			Help: "Denied requests by reason code.",
		},
		[]string{"reason"},
	)

	auditFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_audit_failures_total",
			Help: "Spend-accounting writes that failed after the AI call.",
		},
	)

	spendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_spend_usd_total",
			Help: "Audited spend in USD by request class.",
		},
		[]string{"class"},
	)
)

func RecordDecision(class string, admitted bool) {
	outcome := "admitted"
	if !admitted {
		outcome = "denied"
	}
	decisionsTotal.WithLabelValues(class, outcome).Inc()
}

func RecordDenial(reason string) {
	denialsTotal.WithLabelValues(reason).Inc()
}

func RecordAuditFailure() {
	auditFailuresTotal.Inc()
}

func RecordSpend(class string, usd float64) {
	spendTotal.WithLabelValues(class).Add(usd)
}
