package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.weather.gov"
	defaultTimeout = 10 * time.Second

	// The upstream API requires a UA identifying the calling application.
	defaultUserAgent = "weatherwire/1.0 (github.com/weatherwire/weatherwire)"

	acceptGeoJSON = "application/geo+json"
)

// FetchError reports an upstream request failure. It carries the operation
// and HTTP status but deliberately not the response body; upstream error
// bodies never propagate to callers.
type FetchError struct {
	Op         string // "alerts", "points", or "forecast"
	StatusCode int    // zero when the request never completed
	Err        error  // transport-level cause, if any
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("weather service %s request failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("weather service %s request failed", e.Op)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Alert is one active weather alert.
type Alert struct {
	Event       string `json:"event"`
	AreaDesc    string `json:"areaDesc"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

// ForecastPeriod is one named forecast window (e.g. "Tonight").
type ForecastPeriod struct {
	Name             string `json:"name"`
	Temperature      int    `json:"temperature"`
	TemperatureUnit  string `json:"temperatureUnit"`
	WindSpeed        string `json:"windSpeed"`
	WindDirection    string `json:"windDirection"`
	DetailedForecast string `json:"detailedForecast"`
}

// Client talks to the National Weather Service API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithUserAgent overrides the User-Agent header sent upstream.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient constructs a Client with a bounded request timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type alertsResponse struct {
	Features []struct {
		Properties Alert `json:"properties"`
	} `json:"features"`
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []ForecastPeriod `json:"periods"`
	} `json:"properties"`
}

// ActiveAlerts fetches active alerts for a two-letter state code. The caller
// is responsible for validating and normalizing the code.
func (c *Client) ActiveAlerts(ctx context.Context, state string) ([]Alert, error) {
	url := fmt.Sprintf("%s/alerts/active/area/%s", c.baseURL, state)
	var body alertsResponse
	if err := c.getJSON(ctx, "alerts", url, &body); err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(body.Features))
	for _, f := range body.Features {
		alerts = append(alerts, f.Properties)
	}
	return alerts, nil
}

// Forecast resolves coordinates to a forecast grid and fetches its periods.
// Two upstream round trips: /points/{lat},{lon} yields the gridpoint forecast
// URL, which is then fetched directly.
func (c *Client) Forecast(ctx context.Context, latitude, longitude float64) ([]ForecastPeriod, error) {
	pointsURL := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, latitude, longitude)
	var pts pointsResponse
	if err := c.getJSON(ctx, "points", pointsURL, &pts); err != nil {
		return nil, err
	}
	if pts.Properties.Forecast == "" {
		return nil, &FetchError{Op: "points"}
	}

	var fc forecastResponse
	if err := c.getJSON(ctx, "forecast", pts.Properties.Forecast, &fc); err != nil {
		return nil, err
	}
	return fc.Properties.Periods, nil
}

func (c *Client) getJSON(ctx context.Context, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptGeoJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{Op: op, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, Err: err}
	}
	return nil
}
