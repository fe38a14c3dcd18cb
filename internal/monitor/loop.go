// Package monitor runs the read-then-draw update loop.
package monitor

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"cloudpico-display/internal/display"
	"cloudpico-display/internal/sensor"
)

// Fixed vertical offsets of the three text rows.
const (
	greetingY    = 0
	temperatureY = 16
	humidityY    = 48
)

// Measurer blocks until a reading is available.
type Measurer interface {
	Measure(ctx context.Context) (sensor.Measurement, error)
}

type Renderer interface {
	Render(lines []display.Line) error
}

type Loop struct {
	measurer Measurer
	renderer Renderer
	logger   *slog.Logger
	greeting string

	iteration uint64
}

func New(m Measurer, r Renderer, logger *slog.Logger, greeting string) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		measurer: m,
		renderer: r,
		logger:   logger,
		greeting: greeting,
	}
}

// Lines lays out one frame for m.
func (l *Loop) Lines(m sensor.Measurement) []display.Line {
	return []display.Line{
		{Text: l.greeting, At: image.Pt(0, greetingY)},
		{Text: FormatTemperature(m.Fahrenheit()), At: image.Pt(0, temperatureY)},
		{Text: FormatHumidity(m.Humidity), At: image.Pt(0, humidityY)},
	}
}

// Step measures once and redraws the panel.
func (l *Loop) Step(ctx context.Context) error {
	l.iteration++

	m, err := l.measurer.Measure(ctx)
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}

	lines := l.Lines(m)
	if err := l.renderer.Render(lines); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	l.logger.Debug("display updated",
		"iteration", l.iteration,
		"temperature_c", m.Temperature,
		"humidity_pct", m.Humidity,
		"temperature_text", lines[1].Text,
		"humidity_text", lines[2].Text,
	)
	return nil
}

// Run repeats Step until it fails or ctx is cancelled. There is no retry:
// the first failure is returned to the caller.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("update loop started", "greeting", l.greeting)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
