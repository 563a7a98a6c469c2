package weather

import (
	"fmt"
	"strings"
)

// maxForecastPeriods bounds how many periods a forecast response renders.
const maxForecastPeriods = 10

// FormatAlerts renders alerts as readable text. An empty set reports that no
// alerts are active for the state.
func FormatAlerts(state string, alerts []Alert) string {
	if len(alerts) == 0 {
		return fmt.Sprintf("No active alerts for %s.", state)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active alerts for %s:\n\n", state)
	for i, a := range alerts {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "Event: %s\n", valueOr(a.Event, "Unknown"))
		fmt.Fprintf(&b, "Area: %s\n", valueOr(a.AreaDesc, "Unknown"))
		fmt.Fprintf(&b, "Severity: %s\n", valueOr(a.Severity, "Unknown"))
		fmt.Fprintf(&b, "Description: %s\n", valueOr(a.Description, "No description available"))
		if a.Instruction != "" {
			fmt.Fprintf(&b, "Instructions: %s\n", a.Instruction)
		}
	}
	return b.String()
}

// FormatForecast renders up to maxForecastPeriods forecast periods.
func FormatForecast(periods []ForecastPeriod) string {
	if len(periods) == 0 {
		return "No forecast periods available."
	}
	if len(periods) > maxForecastPeriods {
		periods = periods[:maxForecastPeriods]
	}
	var b strings.Builder
	for i, p := range periods {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "%s:\n", p.Name)
		fmt.Fprintf(&b, "Temperature: %d°%s\n", p.Temperature, p.TemperatureUnit)
		fmt.Fprintf(&b, "Wind: %s %s\n", p.WindSpeed, p.WindDirection)
		fmt.Fprintf(&b, "Forecast: %s\n", p.DetailedForecast)
	}
	return b.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
