package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/albapepper/morningcast/internal/api/handler"
	"github.com/albapepper/morningcast/internal/config"
	"github.com/albapepper/morningcast/internal/metrics"
	"github.com/albapepper/morningcast/internal/users"
)

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

type fakeRuns struct{}

func (fakeRuns) Next() time.Time { return time.Date(2026, 1, 2, 3, 30, 0, 0, time.UTC) }
func (fakeRuns) LastSummary() (string, bool) {
	return "run=01TEST users=2 delivered=1 skipped=1 failed=0 duration=1s", true
}

func newTestServer(t *testing.T, deps handler.Deps, cfg *config.Config) *httptest.Server {
	t.Helper()
	if deps.Users == nil {
		path := filepath.Join(t.TempDir(), "user.json")
		deps.Users = users.NewFileStore(users.LocalBlob{Path: path}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}
	if cfg == nil {
		cfg = &config.Config{CORSAllowOrigins: []string{"http://localhost:8081"}}
	}
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(NewRouter(deps, metrics.New(reg, reg), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, handler.Deps{}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/users", `{"username":"ada","location":" London "}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", resp.StatusCode, body)
	}
	if body["user_id"] != float64(1) || body["location"] != "London" || body["has_token"] != false {
		t.Fatalf("create body = %v", body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/users", `{"username":"ada","location":"Paris"}`)
	if resp.StatusCode != http.StatusConflict || errorCode(body) != "USERNAME_TAKEN" {
		t.Fatalf("duplicate status = %d, body %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/users/1/token", `{"token":"ExponentPushToken[abc]"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set token status = %d, body %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/users?username=ada", "")
	if resp.StatusCode != http.StatusOK || body["has_token"] != true {
		t.Fatalf("get status = %d, body %v", resp.StatusCode, body)
	}
	if _, leaked := body["token"]; leaked {
		t.Fatal("response exposes the device token")
	}

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v1/users/1/location", `{"location":"Tokyo"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update location status = %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/users/1/token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear token status = %d", resp.StatusCode)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/v1/users?username=ada", "")
	if body["location"] != "Tokyo" || body["has_token"] != false {
		t.Fatalf("final state = %v", body)
	}
}

func TestUserErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, handler.Deps{}, nil)

	tests := []struct {
		name, method, path, body string
		status                   int
		code                     string
	}{
		{"missing location", http.MethodPost, "/api/v1/users", `{"username":"bob"}`, http.StatusBadRequest, "INVALID_USER"},
		{"unknown field", http.MethodPost, "/api/v1/users", `{"username":"bob","location":"x","admin":true}`, http.StatusBadRequest, "INVALID_BODY"},
		{"malformed body", http.MethodPost, "/api/v1/users", `{`, http.StatusBadRequest, "INVALID_BODY"},
		{"missing username query", http.MethodGet, "/api/v1/users", "", http.StatusBadRequest, "MISSING_USERNAME"},
		{"unknown username", http.MethodGet, "/api/v1/users?username=nobody", "", http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodPost, "/api/v1/users/abc/token", `{"token":"t"}`, http.StatusBadRequest, "INVALID_ID"},
		{"unknown id", http.MethodPost, "/api/v1/users/42/token", `{"token":"t"}`, http.StatusNotFound, "NOT_FOUND"},
		{"blank token", http.MethodPost, "/api/v1/users/42/token", `{"token":"  "}`, http.StatusBadRequest, "INVALID_USER"},
		{"blank location", http.MethodPut, "/api/v1/users/42/location", `{"location":""}`, http.StatusBadRequest, "INVALID_USER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, tt.status, body)
			}
			if got := errorCode(body); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("db not configured", func(t *testing.T) {
		srv := newTestServer(t, handler.Deps{}, nil)
		resp, body := do(t, http.MethodGet, srv.URL+"/health/db", "")
		if resp.StatusCode != http.StatusOK || body["database"] != "not_configured" {
			t.Fatalf("status = %d, body %v", resp.StatusCode, body)
		}
	})

	t.Run("db down", func(t *testing.T) {
		srv := newTestServer(t, handler.Deps{DB: fakeDB{err: errors.New("refused")}}, nil)
		resp, body := do(t, http.MethodGet, srv.URL+"/health/db", "")
		if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
			t.Fatalf("status = %d, body %v", resp.StatusCode, body)
		}
	})

	t.Run("scheduler", func(t *testing.T) {
		srv := newTestServer(t, handler.Deps{Runs: fakeRuns{}}, nil)
		resp, body := do(t, http.MethodGet, srv.URL+"/health/scheduler", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if body["next_run"] != "2026-01-02T03:30:00Z" {
			t.Fatalf("next_run = %v", body["next_run"])
		}
		if s, _ := body["last_run"].(string); !strings.HasPrefix(s, "run=01TEST") {
			t.Fatalf("last_run = %v", body["last_run"])
		}
	})

	t.Run("basic and timing header", func(t *testing.T) {
		srv := newTestServer(t, handler.Deps{}, nil)
		resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
		if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
			t.Fatalf("status = %d, body %v", resp.StatusCode, body)
		}
		if resp.Header.Get("X-Process-Time") == "" {
			t.Fatal("missing X-Process-Time header")
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, handler.Deps{}, nil)

	do(t, http.MethodGet, srv.URL+"/api/v1/users?username=ghost", "")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	text := string(raw)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := `morningcast_api_http_requests_total{method="GET",route="/api/v1/users",status="404"} 1`
	if !strings.Contains(text, want) {
		t.Fatalf("metrics missing %q:\n%s", want, text)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{RateLimitEnabled: true, RateLimitRequests: 2, RateLimitWindow: time.Hour}
	srv := newTestServer(t, handler.Deps{}, cfg)

	// Burst is half the window allowance.
	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusTooManyRequests || errorCode(body) != "RATE_LIMITED" {
		t.Fatalf("second request status = %d, body %v", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") != "3600" {
		t.Fatalf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
}
