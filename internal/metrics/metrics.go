package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

// Recorder implements domain.Recorder with Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	cacheWriteErrors *prometheus.CounterVec
	candidates       *prometheus.HistogramVec
	hashtagFallbacks prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry, which also carries
// the Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feeds",
			Name:      "cache_lookups_total",
			Help:      "Feed head cache lookups by feed and outcome.",
		}, []string{"feed", "outcome"}),
		cacheWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feeds",
			Name:      "cache_write_errors_total",
			Help:      "Feed head cache writes that failed.",
		}, []string{"feed"}),
		candidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feeds",
			Name:      "candidates_fetched",
			Help:      "Posts returned by the candidate query of a feed request.",
			Buckets:   []float64{0, 10, 25, 50, 100, 150, 200},
		}, []string{"feed"}),
		hashtagFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feeds",
			Name:      "hashtag_fallbacks_total",
			Help:      "Trending hashtag requests answered by scanning posts.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.cacheLookups,
		r.cacheWriteErrors,
		r.candidates,
		r.hashtagFallbacks,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// CacheLookup counts a feed cache lookup by outcome.
func (r *Recorder) CacheLookup(feed domain.FeedType, outcome domain.CacheOutcome) {
	r.cacheLookups.WithLabelValues(string(feed), string(outcome)).Inc()
}

// CacheWriteFailed counts a feed head that could not be cached.
func (r *Recorder) CacheWriteFailed(feed domain.FeedType) {
	r.cacheWriteErrors.WithLabelValues(string(feed)).Inc()
}

// CandidatesFetched records how many candidates a ranked feed query returned.
func (r *Recorder) CandidatesFetched(feed domain.FeedType, n int) {
	r.candidates.WithLabelValues(string(feed)).Observe(float64(n))
}

// HashtagFallback counts a trending request served by the post scan.
func (r *Recorder) HashtagFallback() {
	r.hashtagFallbacks.Inc()
}
