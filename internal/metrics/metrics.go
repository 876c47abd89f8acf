// Package metrics holds the Prometheus collectors for the media access path.
// Every method is safe on a nil *Metrics so components can run uninstrumented.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	accessDecisions   *prometheus.CounterVec
	playTokensIssued  prometheus.Counter
	streamRequests    *prometheus.CounterVec
	streamBytes       prometheus.Counter
	decryptDuration   prometheus.Histogram
	uploads           *prometheus.CounterVec
	purchasesRecorded *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raibee_access_decisions_total",
			Help: "Access control decisions by outcome and matched rule.",
		}, []string{"decision", "reason"}),
		playTokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raibee_play_tokens_issued_total",
			Help: "Play tokens minted after an allow decision.",
		}),
		streamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raibee_stream_requests_total",
			Help: "Stream requests by terminal outcome.",
		}, []string{"outcome"}),
		streamBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raibee_stream_bytes_total",
			Help: "Plaintext bytes written to stream clients.",
		}),
		decryptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "raibee_decrypt_duration_seconds",
			Help:    "Time spent opening media containers.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raibee_uploads_total",
			Help: "Upload attempts by outcome.",
		}, []string{"outcome"}),
		purchasesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raibee_purchases_recorded_total",
			Help: "Purchases recorded by source.",
		}, []string{"source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raibee_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		m.accessDecisions,
		m.playTokensIssued,
		m.streamRequests,
		m.streamBytes,
		m.decryptDuration,
		m.uploads,
		m.purchasesRecorded,
		m.httpRequests,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveDecision counts an access control decision.
func (m *Metrics) ObserveDecision(allowed bool, reason string) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.accessDecisions.WithLabelValues(decision, reason).Inc()
}

// PlayTokenIssued counts a minted play token.
func (m *Metrics) PlayTokenIssued() {
	if m == nil {
		return
	}
	m.playTokensIssued.Inc()
}

// ObserveStream counts a finished stream request and the bytes it delivered.
func (m *Metrics) ObserveStream(outcome string, bytes int) {
	if m == nil {
		return
	}
	m.streamRequests.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.streamBytes.Add(float64(bytes))
	}
}

// ObserveDecrypt records how long a container took to open.
func (m *Metrics) ObserveDecrypt(d time.Duration) {
	if m == nil {
		return
	}
	m.decryptDuration.Observe(d.Seconds())
}

// ObserveUpload counts an upload attempt.
func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// ObservePurchase counts a recorded purchase by source ("http" or "amqp").
func (m *Metrics) ObservePurchase(source string) {
	if m == nil {
		return
	}
	m.purchasesRecorded.WithLabelValues(source).Inc()
}

// ObserveHTTP counts a completed HTTP request.
func (m *Metrics) ObserveHTTP(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
