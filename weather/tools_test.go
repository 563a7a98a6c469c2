package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/mcpservice"
	"github.com/weatherwire/weatherwire/sessions"
)

type stubSession struct{}

func (stubSession) SessionID() string            { return "test-session" }
func (stubSession) ProtocolVersion() string      { return mcp.LatestProtocolVersion }
func (stubSession) State() sessions.SessionState { return sessions.SessionStateOpen }

func TestGetAlertsToolUppercasesState(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"features":[]}`)
	}))
	defer srv.Close()

	tc := mcpservice.NewToolsContainer(NewAlertsTool(NewClient(WithBaseURL(srv.URL))))
	res, err := tc.CallTool(context.Background(), stubSession{}, &mcp.CallToolRequestReceived{
		Name:      "get_alerts",
		Arguments: json.RawMessage(`{"state":"tx"}`),
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if gotPath != "/alerts/active/area/TX" {
		t.Fatalf("state not normalized: %s", gotPath)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if !strings.Contains(res.Content[0].Text, "No active alerts for TX") {
		t.Fatalf("unexpected text: %q", res.Content[0].Text)
	}
}

func TestGetAlertsToolRejectsBadStateWithoutFetching(t *testing.T) {
	fetched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
		fmt.Fprint(w, `{"features":[]}`)
	}))
	defer srv.Close()

	tc := mcpservice.NewToolsContainer(NewAlertsTool(NewClient(WithBaseURL(srv.URL))))
	_, err := tc.CallTool(context.Background(), stubSession{}, &mcp.CallToolRequestReceived{
		Name:      "get_alerts",
		Arguments: json.RawMessage(`{"state":"Texas"}`),
	})
	var ve *mcpservice.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fetched {
		t.Fatal("upstream was contacted despite invalid arguments")
	}
}

func TestGetForecastToolRejectsOutOfRangeCoordinates(t *testing.T) {
	fetched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
	}))
	defer srv.Close()

	tc := mcpservice.NewToolsContainer(NewForecastTool(NewClient(WithBaseURL(srv.URL))))
	_, err := tc.CallTool(context.Background(), stubSession{}, &mcp.CallToolRequestReceived{
		Name:      "get_forecast",
		Arguments: json.RawMessage(`{"latitude":123.4,"longitude":-97.7}`),
	})
	var ve *mcpservice.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fetched {
		t.Fatal("upstream was contacted despite invalid coordinates")
	}
}

func TestGetForecastToolRendersPeriods(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"properties":{"forecast":"%s/forecast"}}`, srv.URL)
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"periods":[{"name":"Tonight","temperature":65,"temperatureUnit":"F","windSpeed":"5 mph","windDirection":"SW","detailedForecast":"Clear."}]}}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	tc := mcpservice.NewToolsContainer(NewForecastTool(NewClient(WithBaseURL(srv.URL))))
	res, err := tc.CallTool(context.Background(), stubSession{}, &mcp.CallToolRequestReceived{
		Name:      "get_forecast",
		Arguments: json.RawMessage(`{"latitude":30.2672,"longitude":-97.7431}`),
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	text := res.Content[0].Text
	if !strings.Contains(text, "Tonight:") || !strings.Contains(text, "Temperature: 65°F") {
		t.Fatalf("unexpected forecast text:\n%s", text)
	}
}

func TestFetchFailureBecomesErrorResultNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `secret upstream stack trace`)
	}))
	defer srv.Close()

	tc := mcpservice.NewToolsContainer(NewAlertsTool(NewClient(WithBaseURL(srv.URL))))
	res, err := tc.CallTool(context.Background(), stubSession{}, &mcp.CallToolRequestReceived{
		Name:      "get_alerts",
		Arguments: json.RawMessage(`{"state":"TX"}`),
	})
	if err != nil {
		t.Fatalf("fetch failure should not be a dispatch error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error-flagged result")
	}
	text := res.Content[0].Text
	if strings.Contains(text, "stack trace") {
		t.Fatalf("result leaked upstream body: %q", text)
	}
	if !strings.Contains(text, "failed to retrieve alerts") {
		t.Fatalf("unexpected failure text: %q", text)
	}
}
