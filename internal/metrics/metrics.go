// Package metrics exposes Prometheus instrumentation for the preheat
// pipeline. Collectors are registered on the default registry and served
// through the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsReceived counts inbound Emby webhook deliveries by event
	// name.
	WebhookEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preheat_webhook_events_received_total",
		Help: "Inbound Emby webhook events, labeled by event name.",
	}, []string{"event"})

	// WebhookEventsIgnored counts deliveries dropped before resolution.
	WebhookEventsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preheat_webhook_events_ignored_total",
		Help: "Webhook events ignored before path resolution, labeled by reason.",
	}, []string{"reason"})

	// PathResolutions counts resolver runs by outcome.
	PathResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preheat_path_resolutions_total",
		Help: "Path resolution outcomes.",
	}, []string{"outcome"})

	// ReviewRequestsCreated counts ledger rows created.
	ReviewRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "preheat_review_requests_created_total",
		Help: "Review requests recorded in the ledger.",
	})

	// ReviewRequestsDuplicate counts intakes dropped by the cdn_url
	// uniqueness constraint.
	ReviewRequestsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "preheat_review_requests_duplicate_total",
		Help: "Intakes dropped because the CDN URL was already recorded.",
	})

	// BatchFlushes counts dispatcher flushes by trigger.
	BatchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preheat_batch_flushes_total",
		Help: "Notification batch flushes, labeled by trigger (size or interval).",
	}, []string{"trigger"})

	// NotificationsSent counts messages delivered to the review channel.
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "preheat_notifications_sent_total",
		Help: "Messages delivered to the review channel.",
	})

	// NotificationFailures counts per-target send failures.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "preheat_notification_failures_total",
		Help: "Review channel send failures.",
	})

	// ReviewDecisions counts processed reviewer decisions by action.
	ReviewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preheat_review_decisions_total",
		Help: "Reviewer decisions applied to the ledger.",
	}, []string{"action"})

	// ReviewConflicts counts decisions that lost the pending-state race.
	ReviewConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "preheat_review_conflicts_total",
		Help: "Decisions rejected because the request was already decided.",
	})

	// WarmRequests counts CDN warm submissions by result.
	WarmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preheat_warm_requests_total",
		Help: "CDN warm submissions, labeled by result.",
	}, []string{"result"})
)
