// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VendorFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enviofinder_vendor_fetches_total",
		Help: "Vendor page fetches by store and outcome.",
	}, []string{"store", "outcome"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enviofinder_vendor_fetch_duration_seconds",
		Help:    "Vendor fetch duration including retries.",
		Buckets: prometheus.DefBuckets,
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enviofinder_cache_lookups_total",
		Help: "Result cache lookups by outcome (hit, miss, stale).",
	}, []string{"outcome"})

	RescanTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enviofinder_rescan_ticks_total",
		Help: "Completed rescan scheduler ticks.",
	})

	RescanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enviofinder_rescan_tick_duration_seconds",
		Help:    "Duration of one rescan tick.",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enviofinder_notifications_sent_total",
		Help: "Subscription alert messages sent.",
	})
)
