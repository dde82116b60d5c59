// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records application metrics into a Prometheus registry.
type Collector struct {
	feedPages      prometheus.Counter
	searchQueries  prometheus.Counter
	postsCreated   prometheus.Counter
	postsDeleted   prometheus.Counter
	likesRecorded  prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "community_feed_pages_total",
			Help: "Total number of feed pages served.",
		}),
		searchQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "community_search_queries_total",
			Help: "Total number of search queries served.",
		}),
		postsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "community_posts_created_total",
			Help: "Total number of posts created.",
		}),
		postsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "community_posts_deleted_total",
			Help: "Total number of posts deleted.",
		}),
		likesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "community_likes_total",
			Help: "Total number of likes recorded.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "community_http_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "community_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.feedPages,
		c.searchQueries,
		c.postsCreated,
		c.postsDeleted,
		c.likesRecorded,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordFeedPage counts one served feed page.
func (c *Collector) RecordFeedPage() {
	c.feedPages.Inc()
}

// RecordSearchQuery counts one served search query.
func (c *Collector) RecordSearchQuery() {
	c.searchQueries.Inc()
}

// RecordPostCreated counts one created post.
func (c *Collector) RecordPostCreated() {
	c.postsCreated.Inc()
}

// RecordPostDeleted counts one deleted post.
func (c *Collector) RecordPostDeleted() {
	c.postsDeleted.Inc()
}

// RecordLike counts one recorded like.
func (c *Collector) RecordLike() {
	c.likesRecorded.Inc()
}

// RecordHTTPStatus counts one HTTP response by status code.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency observes one request's duration.
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
