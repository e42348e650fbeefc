// Package weather talks to OpenWeather for the two lookups a morning
// notification needs: turning a free-text location into coordinates
// (direct geocoding) and reading the current condition code for it.
//
// Both calls go through one rate-limited client. The condition table that
// turns a code into advice lives in conditions.go.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OpenWeather API host.
const DefaultBaseURL = "https://api.openweathermap.org"

// ErrLocationNotFound means the geocoder returned zero matches.
var ErrLocationNotFound = errors.New("location not found")

// Coordinate is a resolved location.
type Coordinate struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Name    string  `json:"name,omitempty"`
	Country string  `json:"country,omitempty"`
}

// Geocoder resolves a free-text location to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (Coordinate, error)
}

// ConditionFetcher returns the current OpenWeather condition code for a location.
type ConditionFetcher interface {
	CurrentCondition(ctx context.Context, location string) (int, error)
}

// StatusError is a non-200 answer from OpenWeather.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openweather %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client is the OpenWeather HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates an OpenWeather client. requestsPerMinute <= 0 disables
// client-side rate limiting.
func NewClient(baseURL, apiKey string, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

type geocodeMatch struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// Geocode resolves location with the direct geocoding endpoint and keeps the
// top match. Zero matches is ErrLocationNotFound.
func (c *Client) Geocode(ctx context.Context, location string) (Coordinate, error) {
	params := url.Values{}
	params.Set("q", location)
	params.Set("limit", "1")

	var matches []geocodeMatch
	if err := c.get(ctx, "/geo/1.0/direct", params, &matches); err != nil {
		return Coordinate{}, err
	}
	if len(matches) == 0 {
		return Coordinate{}, fmt.Errorf("geocode %q: %w", location, ErrLocationNotFound)
	}

	m := matches[0]
	c.logger.Debug("Geocoded location", "location", location, "lat", m.Lat, "lon", m.Lon, "name", m.Name)
	return Coordinate{Lat: m.Lat, Lon: m.Lon, Name: m.Name, Country: m.Country}, nil
}

type currentWeather struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// CurrentCondition returns weather[0].id for location. Every failure,
// including a 404 for a city the geocoder accepted, is a plain error.
func (c *Client) CurrentCondition(ctx context.Context, location string) (int, error) {
	params := url.Values{}
	params.Set("q", location)

	var cw currentWeather
	if err := c.get(ctx, "/data/2.5/weather", params, &cw); err != nil {
		return 0, fmt.Errorf("current weather %q: %w", location, err)
	}
	if len(cw.Weather) == 0 {
		return 0, fmt.Errorf("current weather %q: no condition in response", location)
	}
	return cw.Weather[0].ID, nil
}

// get performs a rate-limited GET against OpenWeather and decodes into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("appid", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: truncate(body, 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
