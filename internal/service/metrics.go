package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_evaluations_total",
			Help: "Evaluations committed by the accounting engine",
		},
		[]string{"contribution_type", "value", "revote"},
	)
	LedgerAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_ledger_amount_total",
			Help: "Absolute amount moved by the accounting engine, by ledger kind and asset",
		},
		[]string{"kind", "asset"},
	)
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_operation_duration_seconds",
			Help:    "Latency of accounting engine units of work",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_operation_errors_total",
			Help: "Failed accounting engine operations by error class",
		},
		[]string{"operation", "class"},
	)
)

func init() {
	prometheus.MustRegister(EvaluationsTotal)
	prometheus.MustRegister(LedgerAmountTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(OperationErrors)
}
