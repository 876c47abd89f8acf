package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

func TestObserveDecision(t *testing.T) {
	m := newTestMetrics()
	m.ObserveDecision(true, "owner")
	m.ObserveDecision(false, "denied")
	m.ObserveDecision(false, "denied")

	if got := testutil.ToFloat64(m.accessDecisions.WithLabelValues("allow", "owner")); got != 1 {
		t.Fatalf("expected 1 allow/owner, got %v", got)
	}
	if got := testutil.ToFloat64(m.accessDecisions.WithLabelValues("deny", "denied")); got != 2 {
		t.Fatalf("expected 2 deny/denied, got %v", got)
	}
}

func TestObserveStream(t *testing.T) {
	m := newTestMetrics()
	m.ObserveStream("streamed", 1024)
	m.ObserveStream("unauthorized", 0)

	if got := testutil.ToFloat64(m.streamRequests.WithLabelValues("streamed")); got != 1 {
		t.Fatalf("expected 1 streamed, got %v", got)
	}
	if got := testutil.ToFloat64(m.streamBytes); got != 1024 {
		t.Fatalf("expected 1024 bytes, got %v", got)
	}
}

func TestCountersAndHistogram(t *testing.T) {
	m := newTestMetrics()
	m.PlayTokenIssued()
	m.ObserveUpload("stored")
	m.ObservePurchase("amqp")
	m.ObserveHTTP(http.MethodGet, http.StatusNotFound)
	m.ObserveDecrypt(3 * time.Millisecond)

	if got := testutil.ToFloat64(m.playTokensIssued); got != 1 {
		t.Fatalf("expected 1 token, got %v", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("stored")); got != 1 {
		t.Fatalf("expected 1 upload, got %v", got)
	}
	if got := testutil.ToFloat64(m.purchasesRecorded.WithLabelValues("amqp")); got != 1 {
		t.Fatalf("expected 1 purchase, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "404")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
	if got := testutil.CollectAndCount(m.decryptDuration); got != 1 {
		t.Fatalf("expected decrypt histogram to be collected, got %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision(true, "public")
	m.PlayTokenIssued()
	m.ObserveStream("streamed", 10)
	m.ObserveDecrypt(time.Second)
	m.ObserveUpload("stored")
	m.ObservePurchase("http")
	m.ObserveHTTP("GET", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.PlayTokenIssued()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, name := range []string{"raibee_play_tokens_issued_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg, reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double registration")
		}
	}()
	NewWithRegistry(reg, reg)
}
