package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "battle",
		Name:      "queue_depth",
		Help:      "Players currently waiting in the matchmaking queue",
	})

	MatchesMade = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "battle",
		Name:      "matches_made_total",
		Help:      "Total pairs matched by the matchmaker",
	})

	BattlesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "battle",
		Name:      "battles_completed_total",
		Help:      "Battles reaching a terminal state, by trigger",
	}, []string{"reason"})

	SamplesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "battle",
		Name:      "samples_rejected_total",
		Help:      "Inbound samples dropped during validation, by reason",
	}, []string{"reason"})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "battle",
		Name:      "active_rooms",
		Help:      "Battle rooms currently registered",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "battle",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "battle",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack is required so websocket upgrades keep working behind the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels. The path label
// is the chi route pattern, not the raw URL, so parameterized routes stay a
// single series instead of one per battle id.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
