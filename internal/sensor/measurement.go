package sensor

// Measurement is one calibrated reading.
type Measurement struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// Fahrenheit returns the temperature in °F.
func (m Measurement) Fahrenheit() float64 {
	return CelsiusToFahrenheit(m.Temperature)
}

// CelsiusToFahrenheit computes c*1.8 + 32.0. The explicit conversion keeps the
// compiler from fusing the multiply and add, so the result is identical on
// every architecture.
func CelsiusToFahrenheit(c float64) float64 {
	return float64(c*1.8) + 32.0
}
