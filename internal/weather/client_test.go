package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albapepper/morningcast/internal/cache"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 0, nil)
}

func TestGeocode(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geo/1.0/direct" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("appid") != "test-key" || q.Get("limit") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		switch q.Get("q") {
		case "Tokyo":
			fmt.Fprint(w, `[{"name":"Tokyo","lat":35.6828,"lon":139.759,"country":"JP"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})

	got, err := c.Geocode(context.Background(), "Tokyo")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if got.Lat != 35.6828 || got.Lon != 139.759 || got.Country != "JP" {
		t.Fatalf("unexpected coordinate %+v", got)
	}

	_, err = c.Geocode(context.Background(), "Nowhere12345")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
}

func TestCurrentCondition(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/weather" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("q") {
		case "Tokyo":
			fmt.Fprint(w, `{"weather":[{"id":804,"main":"Clouds","description":"overcast clouds"},{"id":701}]}`)
		case "Empty":
			fmt.Fprint(w, `{"weather":[]}`)
		case "Broken":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `upstream failed`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"cod":"404","message":"city not found"}`)
		}
	})
	ctx := context.Background()

	code, err := c.CurrentCondition(ctx, "Tokyo")
	if err != nil || code != 804 {
		t.Fatalf("CurrentCondition(Tokyo) = %d, %v", code, err)
	}

	if _, err := c.CurrentCondition(ctx, "Empty"); err == nil || errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected non-NotFound error for empty weather array, got %v", err)
	}

	_, err = c.CurrentCondition(ctx, "Broken")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}

	_, err = c.CurrentCondition(ctx, "Atlantis")
	if errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("weather 404 must not be ErrLocationNotFound, got %v", err)
	}
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
}

func TestClientHonoursContext(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.CurrentCondition(ctx, "Tokyo"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCachedGeocoder(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("q") == "Nowhere12345" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"name":"Tokyo","lat":35.68,"lon":139.69,"country":"JP"}]`)
	})

	g := NewCachedGeocoder(c, cache.NewMemory(true), time.Hour, nil)
	ctx := context.Background()

	for _, loc := range []string{"Tokyo", " tokyo ", "TOKYO"} {
		got, err := g.Geocode(ctx, loc)
		if err != nil {
			t.Fatalf("Geocode(%q): %v", loc, err)
		}
		if got.Lat != 35.68 {
			t.Fatalf("Geocode(%q) = %+v", loc, got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}

	for i := 0; i < 2; i++ {
		if _, err := g.Geocode(ctx, "Nowhere12345"); !errors.Is(err, ErrLocationNotFound) {
			t.Fatalf("expected ErrLocationNotFound, got %v", err)
		}
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("misses must not be cached: upstream calls = %d, want 3", n)
	}
}
