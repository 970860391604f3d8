package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestLatency records REST call latency by service, method and status class.
	APIRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_api_request_latency_seconds",
		Help:    "REST API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "status"})

	// APIErrors counts classified REST errors by service and code.
	APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_api_errors_total",
		Help: "Total number of REST API errors by error code",
	}, []string{"service", "code"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// RealtimeState is the current realtime channel state (0 disconnected, 1 connecting, 2 connected).
	RealtimeState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_realtime_state",
		Help: "Current state of the realtime channel",
	})

	// RealtimeDialAttempts counts dial attempts by outcome.
	RealtimeDialAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_realtime_dial_attempts_total",
		Help: "Total realtime dial attempts by outcome",
	}, []string{"outcome"})

	// RealtimeEventsTotal counts inbound realtime events by type.
	RealtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_realtime_events_total",
		Help: "Total realtime events received by type",
	}, []string{"event_type"})

	// RealtimeSendDrops counts outbound frames dropped because the send buffer was full.
	RealtimeSendDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_realtime_send_drops_total",
		Help: "Total outbound realtime frames dropped due to backpressure",
	})

	// OptimisticOutcomes counts optimistic updates by operation and outcome.
	OptimisticOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_optimistic_updates_total",
		Help: "Optimistic updates by operation and outcome (confirmed, recovered, rolled_back)",
	}, []string{"operation", "outcome"})

	// PollTicks counts conversation poll ticks by result.
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_poll_ticks_total",
		Help: "Conversation poll ticks by result (fetched, hidden, error)",
	}, []string{"result"})

	// ActivePollers is the number of running conversation poll tasks.
	ActivePollers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_active_pollers",
		Help: "Number of active conversation poll tasks",
	})

	// UnreadNotifications mirrors the derived notification unread count.
	UnreadNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_unread_notifications",
		Help: "Unread notifications in the merged notification list",
	})

	// UnreadMessages mirrors the derived message unread count.
	UnreadMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_unread_messages",
		Help: "Unread direct messages across conversations",
	})
)

// ObserveAPICall records latency and status of one REST call.
func ObserveAPICall(service, method, status string, start time.Time) {
	APIRequestLatency.WithLabelValues(service, method, status).Observe(time.Since(start).Seconds())
}

// RecordOptimistic increments the optimistic outcome counter.
func RecordOptimistic(operation, outcome string) {
	OptimisticOutcomes.WithLabelValues(operation, outcome).Inc()
}
