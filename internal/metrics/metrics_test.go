package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, reg)

	c.RunFinished("completed", 3*time.Second, 12)
	c.UserOutcome("delivered", "dispatch", "")
	c.UserOutcome("failed", "geocode", "not_found")
	c.UserOutcome("failed", "geocode", "not_found")
	c.HTTPRequest("GET", "/health", 200, time.Millisecond)

	if got := testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("runs_total = %v", got)
	}
	if got := testutil.ToFloat64(c.outcomesTotal.WithLabelValues("failed", "geocode", "not_found")); got != 2 {
		t.Fatalf("user_outcomes_total = %v", got)
	}
	if got := testutil.ToFloat64(c.usersEvaluated); got != 12 {
		t.Fatalf("users_in_last_run = %v", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"morningcast_scheduler_runs_total",
		"morningcast_pipeline_user_outcomes_total",
		"morningcast_api_http_requests_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg, reg)
	second := New(reg, reg)

	second.UserOutcome("skipped", "window", "out_of_window")
	if got := testutil.ToFloat64(first.outcomesTotal.WithLabelValues("skipped", "window", "out_of_window")); got != 1 {
		t.Fatalf("collectors not shared: %v", got)
	}
}
