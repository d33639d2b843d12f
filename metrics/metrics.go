package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "songforge"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	songsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "songs_submitted_total",
			Help:      "Songs persisted and triggered, by guidance scale.",
		},
		[]string{"guidance"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "User submissions by outcome (ok, failed, partial).",
		},
		[]string{"result"},
	)

	playLinks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "play_links_total",
			Help:      "Signed play links issued.",
		},
	)

	creditsGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Credits added by the ledger, by product tier.",
		},
		[]string{"tier"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Billing orders seen by the ledger, by result (credited, unmapped_product, duplicate, integration_fault, error).",
		},
		[]string{"result"},
	)

	sweepRedispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_redispatched_total",
			Help:      "Triggers re-published for songs stuck in queued.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		songsSubmitted,
		submissions,
		playLinks,
		creditsGranted,
		orders,
		sweepRedispatched,
		httpRequests,
		httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordSongSubmitted(guidance float64) {
	songsSubmitted.WithLabelValues(strconv.FormatFloat(guidance, 'f', -1, 64)).Inc()
}

func RecordSubmission(result string) {
	submissions.WithLabelValues(result).Inc()
}

func RecordPlayLink() {
	playLinks.Inc()
}

func RecordCreditsGranted(tier string, credits int) {
	creditsGranted.WithLabelValues(tier).Add(float64(credits))
}

func RecordOrder(result string) {
	orders.WithLabelValues(result).Inc()
}

func RecordSweepRedispatch(n int) {
	sweepRedispatched.Add(float64(n))
}

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, route string, status int, seconds float64) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}
