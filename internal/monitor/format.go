package monitor

import "fmt"

// FormatTemperature renders a Fahrenheit value for the panel.
func FormatTemperature(f float64) string {
	return fmt.Sprintf("Temp: %.1f °F", f)
}

// FormatHumidity renders a relative humidity value for the panel. The percent
// sign precedes the number.
func FormatHumidity(h float64) string {
	return fmt.Sprintf("Humidity: %%%.1f", h)
}
