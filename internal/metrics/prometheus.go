package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sortdesk_feed_state",
			Help: "Live feed state (0 connecting, 1 open, 2 reconnecting)",
		},
	)

	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sortdesk_feed_reconnects_total",
			Help: "Total reconnect attempts of the live feed",
		},
	)

	FeedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortdesk_feed_messages_total",
			Help: "Live feed messages by result",
		},
		[]string{"result"},
	)

	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sortdesk_queue_size",
			Help: "Pending suggestions in the review queue",
		},
	)

	SuggestionConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sortdesk_suggestion_confidence",
			Help:    "Confidence of suggestions entering the queue",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortdesk_decisions_total",
			Help: "Accept/reject decisions by outcome",
		},
		[]string{"decision", "outcome"},
	)

	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sortdesk_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortdesk_backend_requests_total",
			Help: "Backend requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	TrainingSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortdesk_training_submissions_total",
			Help: "Training batch submissions by status",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortdesk_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortdesk_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(FeedState)
		prometheus.MustRegister(FeedReconnects)
		prometheus.MustRegister(FeedMessages)
		prometheus.MustRegister(QueueSize)
		prometheus.MustRegister(SuggestionConfidence)
		prometheus.MustRegister(Decisions)
		prometheus.MustRegister(BackendDuration)
		prometheus.MustRegister(BackendRequests)
		prometheus.MustRegister(TrainingSubmissions)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
