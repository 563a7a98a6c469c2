package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestActiveAlertsParsesFeatures(t *testing.T) {
	var gotPath, gotAccept, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"features":[
			{"properties":{"event":"Tornado Warning","areaDesc":"Travis County","severity":"Extreme","description":"Take cover.","instruction":"Move to a basement."}},
			{"properties":{"event":"Flood Watch","areaDesc":"Hays County","severity":"Moderate","description":"Heavy rain expected."}}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	alerts, err := c.ActiveAlerts(context.Background(), "TX")
	if err != nil {
		t.Fatalf("ActiveAlerts: %v", err)
	}
	if gotPath != "/alerts/active/area/TX" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAccept != "application/geo+json" {
		t.Fatalf("unexpected Accept header: %s", gotAccept)
	}
	if !strings.Contains(gotUA, "weatherwire") {
		t.Fatalf("unexpected User-Agent: %s", gotUA)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Event != "Tornado Warning" || alerts[1].Severity != "Moderate" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}

func TestActiveAlertsUpstreamErrorNeverLeaksBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail":"internal diagnostic: db host 10.0.0.5 unreachable"}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.ActiveAlerts(context.Background(), "TX")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusServiceUnavailable || fe.Op != "alerts" {
		t.Fatalf("unexpected FetchError: %+v", fe)
	}
	if strings.Contains(err.Error(), "10.0.0.5") {
		t.Fatalf("error leaked the upstream body: %v", err)
	}
}

func TestForecastResolvesGridpointURL(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/points/30.2672,-97.7431" {
			t.Errorf("unexpected points path: %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"properties":{"forecast":"%s/gridpoints/EWX/156,91/forecast"}}`, srv.URL)
	})
	mux.HandleFunc("/gridpoints/EWX/156,91/forecast", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"periods":[
			{"name":"Tonight","temperature":65,"temperatureUnit":"F","windSpeed":"5 mph","windDirection":"SW","detailedForecast":"Clear skies."},
			{"name":"Tuesday","temperature":88,"temperatureUnit":"F","windSpeed":"10 mph","windDirection":"S","detailedForecast":"Sunny and hot."}
		]}}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	periods, err := c.Forecast(context.Background(), 30.2672, -97.7431)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	if periods[0].Name != "Tonight" || periods[1].Temperature != 88 {
		t.Fatalf("unexpected periods: %+v", periods)
	}
}

func TestForecastFailsWhenPointsOmitsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{}}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Forecast(context.Background(), 30.0, -97.0)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Op != "points" {
		t.Fatalf("expected points op, got %+v", fe)
	}
}

func TestFormatAlertsEmpty(t *testing.T) {
	out := FormatAlerts("WY", nil)
	if out != "No active alerts for WY." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFormatForecastCapsPeriods(t *testing.T) {
	periods := make([]ForecastPeriod, 14)
	for i := range periods {
		periods[i] = ForecastPeriod{Name: fmt.Sprintf("Period %d", i), TemperatureUnit: "F"}
	}
	out := FormatForecast(periods)
	if strings.Contains(out, "Period 10") {
		t.Fatalf("output includes periods past the cap:\n%s", out)
	}
	if !strings.Contains(out, "Period 9") {
		t.Fatalf("output missing last expected period:\n%s", out)
	}
}
