package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	EventsReceived   prometheus.Counter
	EventsAdmitted   prometheus.Counter
	EventsRejected   *prometheus.CounterVec
	ReplySuccesses   prometheus.Counter
	ReplyFailures    prometheus.Counter
	DigestBuilds     prometheus.Counter
	DigestFallbacks  prometheus.Counter
	DigestSends      prometheus.Counter
	DigestSendErrors prometheus.Counter
	ProcessingTime   prometheus.Histogram
}

// NewMetrics creates metrics registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on the given registerer; tests
// pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_events_received_total",
			Help: "Total number of inbound message events received",
		}),
		EventsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_events_admitted_total",
			Help: "Total number of events admitted for answering",
		}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_bot_events_rejected_total",
			Help: "Total number of events rejected by the admission filter",
		}, []string{"reason"}),
		ReplySuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_reply_successes_total",
			Help: "Total number of successful replies",
		}),
		ReplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_reply_failures_total",
			Help: "Total number of failed replies",
		}),
		DigestBuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_digest_builds_total",
			Help: "Total number of digest build runs",
		}),
		DigestFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_digest_fallbacks_total",
			Help: "Total number of builds that fell back to static items",
		}),
		DigestSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_digest_sends_total",
			Help: "Total number of digest cards sent to chats",
		}),
		DigestSendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_bot_digest_send_errors_total",
			Help: "Total number of failed digest card sends",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "digest_bot_event_processing_duration_seconds",
			Help:    "Time spent handling one inbound event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
