// Package metrics exposes Prometheus counters for answering, retrieval, the firewall
// and language model calls.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

const namespace = "kotae"

// Metrics holds one process-wide registry. It satisfies the observer interfaces of the
// router, worker and llm packages.
type Metrics struct {
	registry *prometheus.Registry

	answersTotal     *prometheus.CounterVec
	answerDuration   *prometheus.HistogramVec
	retrievedChunks  prometheus.Histogram
	safetyBlocks     prometheus.Counter
	llmCallsTotal    *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	questionInFlight prometheus.Gauge
	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "answers_total",
			Help:      "Answered questions by route and fallback.",
		},
		[]string{"route", "fallback"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "answer_duration_seconds",
			Help:      "Time to answer one question.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"route"},
	)
	retrievedChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 7, 10, 20},
		},
	)
	safetyBlocks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "blocked_total",
			Help:      "Questions blocked by the semantic firewall.",
		},
	)
	llmCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Language model calls by provider, operation and status.",
		},
		[]string{"provider", "operation", "status"},
	)
	llmCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Language model call duration including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
	questionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "questions_in_flight",
			Help:      "Questions currently being answered.",
		},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		answersTotal,
		answerDuration,
		retrievedChunks,
		safetyBlocks,
		llmCallsTotal,
		llmCallDuration,
		questionInFlight,
		requestTotal,
		requestDuration,
	)

	return &Metrics{
		registry:         registry,
		answersTotal:     answersTotal,
		answerDuration:   answerDuration,
		retrievedChunks:  retrievedChunks,
		safetyBlocks:     safetyBlocks,
		llmCallsTotal:    llmCallsTotal,
		llmCallDuration:  llmCallDuration,
		questionInFlight: questionInFlight,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAnswer(a *models.Answer, elapsed time.Duration) {
	route := string(a.Route)
	if route == "" {
		route = "unknown"
	}
	m.answersTotal.WithLabelValues(route, strconv.FormatBool(a.Fallback)).Inc()
	m.answerDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSafetyBlock() {
	m.safetyBlocks.Inc()
}

func (m *Metrics) ObserveRetrieval(results int) {
	m.retrievedChunks.Observe(float64(results))
}

func (m *Metrics) QuestionStarted() {
	m.questionInFlight.Inc()
}

func (m *Metrics) QuestionFinished() {
	m.questionInFlight.Dec()
}

// ObserveCall records one model call. Status is "ok", the HTTP status code, or "error".
func (m *Metrics) ObserveCall(provider, operation string, elapsed time.Duration, err error) {
	m.llmCallsTotal.WithLabelValues(provider, operation, callStatus(err)).Inc()
	m.llmCallDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *llm.HTTPStatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	return "error"
}

// Middleware counts requests by route pattern. routePattern maps a request to a
// low-cardinality label; nil uses the URL path.
func (m *Metrics) Middleware(routePattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(recorder, r)

			path := r.URL.Path
			if routePattern != nil {
				if p := routePattern(r); p != "" {
					path = p
				}
			}
			m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
			m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
