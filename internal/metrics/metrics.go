// Package metrics exposes the pipeline's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnrichmentCacheHits counts metadata lookups served from cache.
	EnrichmentCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_enrichment_cache_hits_total",
		Help: "Metadata lookups served from the TTL cache.",
	})

	// EnrichmentCacheMisses counts metadata lookups that went to the provider.
	EnrichmentCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_enrichment_cache_misses_total",
		Help: "Metadata lookups not present in the TTL cache.",
	})

	// ProviderRequests counts outbound metadata provider calls.
	ProviderRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_provider_requests_total",
		Help: "Outbound metadata provider API calls.",
	})

	// ProviderFailures counts enrichment attempts that exhausted retries.
	ProviderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_provider_failures_total",
		Help: "Enrichment attempts that failed after retries.",
	})

	// EntriesRecorded counts newly created monitoring entries.
	EntriesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_monitoring_entries_recorded_total",
		Help: "Monitoring entries created by the deduplicating upsert.",
	})

	// EntriesDuplicate counts upserts that hit an existing entry.
	EntriesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_monitoring_entries_duplicate_total",
		Help: "Candidate recordings that matched an existing entry.",
	})

	// NotificationsCreated counts dispatched notifications.
	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_notifications_created_total",
		Help: "Notifications created by dispatch sweeps.",
	})

	// NotificationsSuppressed counts entries closed without a notification
	// because the user already consumed the successor.
	NotificationsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_notifications_suppressed_total",
		Help: "Monitoring entries closed by consumption suppression.",
	})

	// EmailFailures counts fire-and-forget email sends that failed.
	EmailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequelarr_email_failures_total",
		Help: "Notification emails that failed to send.",
	})
)
