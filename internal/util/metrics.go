package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed with stock committed",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of order placements rejected before persistence",
	}, []string{"reason"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of persisted orders marked failed",
	}, []string{"reason"})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of administrative order status transitions",
	}, []string{"to"})

	StockDebitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_debit_latency_seconds",
		Help:    "Latency of committing stock for one order",
		Buckets: prometheus.DefBuckets,
	})

	StockDebitConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_debit_conflicts_total",
		Help: "Total number of debits rejected by the stock guard after the availability check passed",
	})

	StockCompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_compensations_total",
		Help: "Total number of compensating credits by outcome",
	}, []string{"outcome"})

	ReconciliationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_actions_total",
		Help: "Total number of orders repaired by the reconciler",
	}, []string{"action"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
