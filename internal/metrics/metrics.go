// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsTotal counts recorded check-ins by resulting status,
	// including the "already" idempotence hits.
	CheckinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_checkins_total",
		Help: "Check-in attempts that reached the recorder, by outcome.",
	}, []string{"status"})

	// TokensIssued counts QR tokens issued.
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "academy_qr_tokens_issued_total",
		Help: "QR check-in tokens issued.",
	})

	// TokenFailures counts rejected token validations by reason.
	TokenFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_qr_token_failures_total",
		Help: "QR token validations rejected, by reason.",
	}, []string{"reason"})
)
