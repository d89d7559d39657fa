package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation
	ReconcileItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courierhub_reconcile_items_total",
			Help: "Total number of reconciled AWBs by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courierhub_reconcile_duration_seconds",
			Help:    "Duration of one AWB reconciliation (fetch + persist) in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	EventsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courierhub_tracking_events_inserted_total",
			Help: "Total number of new tracking events stored",
		},
		[]string{"provider"},
	)

	StatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courierhub_status_changes_total",
			Help: "Total number of status history rows appended",
		},
		[]string{"provider"},
	)

	NotifyErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courierhub_status_notify_errors_total",
			Help: "Total number of failed status-change publications",
		},
	)

	// Worker
	PollerClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courierhub_poller_claimed_total",
			Help: "Total number of consignments claimed by the poller",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courierhub_provider_rate_limit_hits_total",
			Help: "Total number of times a provider rate limit was exceeded",
		},
		[]string{"provider"},
	)

	// Pricing
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courierhub_pricing_quotes_total",
			Help: "Total number of price quotes by result",
		},
		[]string{"result"},
	)
)
