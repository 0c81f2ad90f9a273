package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mashoras_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mashoras_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mashoras_notifications_sent_total",
			Help: "Notifications delivered, by event class",
		},
		[]string{"event"},
	)

	NotificationsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mashoras_notifications_deduplicated_total",
		Help: "Notifications skipped because their key was already marked",
	})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mashoras_notifications_failed_total",
		Help: "Notifications that could not be delivered",
	})

	SubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mashoras_subscription_errors_total",
			Help: "Live subscriptions that terminated with an error",
		},
		[]string{"watch"},
	)

	FeedBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mashoras_feed_broadcasts_total",
			Help: "Snapshots fanned out by a change feed",
		},
		[]string{"feed"},
	)

	ActiveObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mashoras_notification_observers",
		Help: "Running per-student notification observers",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latencies by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
