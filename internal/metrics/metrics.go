// Package metrics provides Prometheus metrics for the study assistant
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Answer metrics
	AnswersTotal     *prometheus.CounterVec
	AnswerDuration   prometheus.Histogram
	RetrievedMatches prometheus.Histogram
	BlankQuestions   prometheus.Counter

	// Ingestion metrics
	IngestedChunksTotal prometheus.Counter
	IngestedPagesTotal  prometheus.Counter
	EmptyPagesTotal     prometheus.Counter
}

// New registers all metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyrag_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studyrag_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AnswersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyrag_answers_total",
				Help: "Total number of answered questions by status",
			},
			[]string{"status"},
		),
		AnswerDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studyrag_answer_duration_seconds",
				Help:    "Time to embed, retrieve and generate one answer",
				Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
			},
		),
		RetrievedMatches: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studyrag_retrieved_matches",
				Help:    "Number of matches used as context per answer",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
		BlankQuestions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "studyrag_blank_questions_total",
				Help: "Questions rejected because they were blank",
			},
		),
		IngestedChunksTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "studyrag_ingested_chunks_total",
				Help: "Total number of chunks upserted",
			},
		),
		IngestedPagesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "studyrag_ingested_pages_total",
				Help: "Total number of pages extracted",
			},
		),
		EmptyPagesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "studyrag_empty_pages_total",
				Help: "Pages skipped because no text was recognized",
			},
		),
	}
}

// ObserveAnswer records one composer call
func (m *Metrics) ObserveAnswer(start time.Time, matches int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AnswersTotal.WithLabelValues(status).Inc()
	m.AnswerDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		m.RetrievedMatches.Observe(float64(matches))
	}
}

// ObserveIngest records one ingestion run
func (m *Metrics) ObserveIngest(pages, emptyPages, chunks int) {
	if m == nil {
		return
	}
	m.IngestedPagesTotal.Add(float64(pages))
	m.EmptyPagesTotal.Add(float64(emptyPages))
	m.IngestedChunksTotal.Add(float64(chunks))
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, statusText(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveBlank records a rejected blank question
func (m *Metrics) ObserveBlank() {
	if m == nil {
		return
	}
	m.BlankQuestions.Inc()
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
