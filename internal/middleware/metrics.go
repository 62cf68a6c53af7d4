package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpt_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpt_bot_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpt_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	callbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpt_bot_callback_events_total",
		Help: "Total number of settings callback events",
	}, []string{"action"})

	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpt_bot_generation_requests_total",
		Help: "Total number of generation requests",
	}, []string{"mode", "status"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpt_bot_generation_duration_seconds",
		Help:    "Duration of generation requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	streamRenders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_bot_stream_renders_total",
		Help: "Total number of partial stream renders",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_bot_cache_hits_total",
		Help: "Total number of answer cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_bot_cache_misses_total",
		Help: "Total number of answer cache misses",
	})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_bot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordCallbackEvent records a settings callback by action family
func (m *Metrics) RecordCallbackEvent(action string) {
	callbackEvents.WithLabelValues(action).Inc()
}

// RecordGeneration records one generation request
func (m *Metrics) RecordGeneration(mode, status string, duration time.Duration) {
	generationRequests.WithLabelValues(mode, status).Inc()
	generationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStreamRender records one partial render edit
func (m *Metrics) RecordStreamRender() {
	streamRenders.Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit rejection
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
