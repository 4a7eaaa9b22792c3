package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.TokenCreated()
	m.Decision(DecisionGranted)
	m.Decision(DecisionGranted)
	m.Decision(DecisionDenied)
	m.ResponseCallbackFailed("repo:create")

	if got := testutil.ToFloat64(m.tokensCreated); got != 1 {
		t.Errorf("tokens created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues(DecisionGranted)); got != 2 {
		t.Errorf("granted decisions = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `magicproxy_response_callback_failures_total{scope="repo:create"} 1`) {
		t.Errorf("metrics output does not contain callback failure counter:\n%s", body)
	}
}

func TestMetrics_UpstreamMethodLabel(t *testing.T) {
	m := New()
	for _, method := range []string{"GET", "GET", "BREW", "PROPFIND", "get", strings.Repeat("X", 64)} {
		m.ObserveUpstream(method, "200", 0.1)
	}

	if got := testutil.CollectAndCount(m.upstreamDuration); got != 2 {
		t.Errorf("upstream duration series = %d, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`magicproxy_upstream_duration_seconds_count{code="200",method="GET"} 2`,
		`magicproxy_upstream_duration_seconds_count{code="200",method="other"} 4`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output does not contain %s:\n%s", want, body)
		}
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.TokenCreated()
	m.Decision(DecisionDenied)
	m.ObserveUpstream("GET", "200", 0.1)
	m.ResponseCallbackFailed("x")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil metrics handler status = %d, want 404", rec.Code)
	}
}
