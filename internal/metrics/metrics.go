// Package metrics exposes Prometheus collectors for the moderation service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	postsModeratedTotal         *prometheus.CounterVec
	imagesProcessedTotal        *prometheus.CounterVec
	fetchRetriesTotal           prometheus.Counter
	ocrFailuresTotal            prometheus.Counter
	scratchCleanupFailuresTotal prometheus.Counter
	crawlPagesTotal             prometheus.Counter
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Image processing outcomes used as label values.
const (
	OutcomeClassified   = "classified"
	OutcomeDownloaded   = "downloaded"
	OutcomeSkippedVideo = "skipped_video"
	OutcomeFetchFailed  = "fetch_failed"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		postsModeratedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_posts_total",
				Help: "Total number of posts moderated, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		imagesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_images_total",
				Help: "Total number of images processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_fetch_retries_total",
				Help: "Total fetch attempts that were retried.",
			},
		)

		ocrFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_ocr_failures_total",
				Help: "Total OCR extractions that failed and degraded to empty text.",
			},
		)

		scratchCleanupFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_scratch_cleanup_failures_total",
				Help: "Total scratch directory removals that failed.",
			},
		)

		crawlPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_crawl_pages_total",
				Help: "Total feed pages processed by the crawl loop.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePost increments the moderated-posts counter for the given verdict.
func ObservePost(unsafe bool) {
	verdict := "safe"
	if unsafe {
		verdict = "unsafe"
	}
	postsModeratedTotal.WithLabelValues(verdict).Inc()
}

// ObserveImage increments the processed-images counter for the given outcome.
func ObserveImage(outcome string) {
	imagesProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchRetry increments the retried-fetch counter.
func ObserveFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveOCRFailure increments the failed-OCR counter.
func ObserveOCRFailure() {
	ocrFailuresTotal.Inc()
}

// ObserveScratchCleanupFailure increments the failed-cleanup counter.
func ObserveScratchCleanupFailure() {
	scratchCleanupFailuresTotal.Inc()
}

// ObserveCrawlPage increments the processed-pages counter.
func ObserveCrawlPage() {
	crawlPagesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
