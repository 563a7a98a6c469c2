package weather

import (
	"context"
	"errors"

	"github.com/weatherwire/weatherwire/mcpservice"
	"github.com/weatherwire/weatherwire/sessions"
)

// AlertsArgs are the arguments for the get_alerts tool.
type AlertsArgs struct {
	State string `json:"state" jsonschema:"description=Two-letter US state code such as CA or NY"`
}

// ForecastArgs are the arguments for the get_forecast tool.
type ForecastArgs struct {
	Latitude  float64 `json:"latitude" jsonschema:"description=Latitude of the location"`
	Longitude float64 `json:"longitude" jsonschema:"description=Longitude of the location"`
}

// NewAlertsTool builds the get_alerts tool over the client. Upstream fetch
// failures become error-flagged tool results, never protocol errors, and the
// rendered message stays generic.
func NewAlertsTool(client *Client) mcpservice.StaticTool {
	return mcpservice.NewTool("get_alerts",
		func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[AlertsArgs]) error {
			state := r.Args().State
			alerts, err := client.ActiveAlerts(ctx, state)
			if err != nil {
				return writeFetchFailure(w, "failed to retrieve alerts", err)
			}
			return w.AppendText(FormatAlerts(state, alerts))
		},
		mcpservice.WithToolDescription("Get active weather alerts for a US state."),
		mcpservice.WithFieldConstraints(
			mcpservice.FieldConstraint{Name: "state", Kind: mcpservice.FieldString, Required: true, ExactLen: 2, Uppercase: true},
		),
	)
}

// NewForecastTool builds the get_forecast tool over the client.
func NewForecastTool(client *Client) mcpservice.StaticTool {
	return mcpservice.NewTool("get_forecast",
		func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[ForecastArgs]) error {
			args := r.Args()
			periods, err := client.Forecast(ctx, args.Latitude, args.Longitude)
			if err != nil {
				return writeFetchFailure(w, "failed to retrieve forecast", err)
			}
			return w.AppendText(FormatForecast(periods))
		},
		mcpservice.WithToolDescription("Get the weather forecast for a location."),
		mcpservice.WithFieldConstraints(
			mcpservice.FieldConstraint{Name: "latitude", Kind: mcpservice.FieldNumber, Required: true, Min: mcpservice.Float(-90), Max: mcpservice.Float(90)},
			mcpservice.FieldConstraint{Name: "longitude", Kind: mcpservice.FieldNumber, Required: true, Min: mcpservice.Float(-180), Max: mcpservice.Float(180)},
		),
	)
}

// writeFetchFailure renders a fetch failure into the result. FetchError
// messages are already body-free; anything else gets the prefix alone.
func writeFetchFailure(w mcpservice.ToolResponseWriter, prefix string, err error) error {
	w.SetError(true)
	var fe *FetchError
	if errors.As(err, &fe) {
		return w.AppendText(prefix + ": " + fe.Error())
	}
	return w.AppendText(prefix + ".")
}
