// Package metrics owns the Prometheus collectors for discovery and ranking
// runs. Every method is safe on a nil *Metrics so callers can run without
// instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "median"

const (
	PipelineDiscovery = "discovery"
	PipelineRanker    = "ranker"
	PipelineAnalyze   = "analyze"
)

type Metrics struct {
	registry *prometheus.Registry

	runs                *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	runErrors           *prometheus.CounterVec
	topics              *prometheus.CounterVec
	articles            *prometheus.CounterVec
	classifierFallbacks prometheus.Counter
	homepageEntries     prometheus.Counter
	homepagePruned      prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by pipeline and outcome.",
		}, []string{"pipeline", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"pipeline"}),
		runErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_item_errors_total",
			Help:      "Per-item errors counted inside pipeline runs.",
		}, []string{"pipeline"}),
		topics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_topics_total",
			Help:      "Suggested topics by outcome.",
		}, []string{"outcome"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_articles_total",
			Help:      "Topic member articles by storage outcome.",
		}, []string{"outcome"}),
		classifierFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Bias classifications derived from the source label.",
		}),
		homepageEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranker_homepage_entries_total",
			Help:      "Homepage rows written by ranker rebuilds.",
		}),
		homepagePruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranker_homepage_pruned_total",
			Help:      "Stale homepage rows removed by ranker rebuilds.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.runDuration,
		m.runErrors,
		m.topics,
		m.articles,
		m.classifierFallbacks,
		m.homepageEntries,
		m.homepagePruned,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRun(pipeline string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.runs.WithLabelValues(pipeline, status).Inc()
	m.runDuration.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

func (m *Metrics) AddItemErrors(pipeline string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.runErrors.WithLabelValues(pipeline).Add(float64(n))
}

func (m *Metrics) AddTopics(discovered, created, rejected int) {
	if m == nil {
		return
	}
	addPositive(m.topics.WithLabelValues("discovered"), discovered)
	addPositive(m.topics.WithLabelValues("created"), created)
	addPositive(m.topics.WithLabelValues("rejected"), rejected)
}

func (m *Metrics) AddArticles(inserted, reused int) {
	if m == nil {
		return
	}
	addPositive(m.articles.WithLabelValues("inserted"), inserted)
	addPositive(m.articles.WithLabelValues("reused"), reused)
}

func (m *Metrics) IncClassifierFallback() {
	if m == nil {
		return
	}
	m.classifierFallbacks.Inc()
}

func (m *Metrics) AddHomepage(entries int, pruned int64) {
	if m == nil {
		return
	}
	addPositive(m.homepageEntries, entries)
	if pruned > 0 {
		m.homepagePruned.Add(float64(pruned))
	}
}

func addPositive(c prometheus.Counter, n int) {
	if n > 0 {
		c.Add(float64(n))
	}
}
