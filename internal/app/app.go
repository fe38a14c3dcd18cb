package app

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"

	"cloudpico-display/internal/bus"
	"cloudpico-display/internal/config"
	"cloudpico-display/internal/display"
	"cloudpico-display/internal/monitor"
	"cloudpico-display/internal/sensor"
)

// Run brings up the shared bus, the sensor and the panel, then drives the
// update loop until it fails or ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing display",
		"i2c_bus", cfg.I2CBus,
		"i2c_frequency", cfg.I2CFrequency.String(),
		"shtc3_addr", fmt.Sprintf("0x%02X", cfg.SHTC3Address),
		"display_rotated", cfg.DisplayRotated,
		"display_flush_after_clear", cfg.DisplayFlushAfterClear,
	)

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	b, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("i2c open %q: %w", cfg.I2CBus, err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			slog.Error("i2c close", "error", closeErr)
		}
	}()

	if err := b.SetSpeed(cfg.I2CFrequency); err != nil {
		return fmt.Errorf("i2c set speed %s: %w", cfg.I2CFrequency, err)
	}

	return serve(ctx, cfg, b)
}

// serve shares b between the sensor and the panel and runs the loop.
func serve(ctx context.Context, cfg config.Config, b i2c.Bus) error {
	arbiter := bus.New(b)
	sensorBus, err := arbiter.Acquire()
	if err != nil {
		return err
	}
	displayBus, err := arbiter.Acquire()
	if err != nil {
		return err
	}

	sht, err := sensor.New(sensorBus, cfg.SHTC3Address)
	if err != nil {
		return err
	}
	defer func() {
		if haltErr := sht.Halt(); haltErr != nil {
			slog.Warn("shtc3 halt", "error", haltErr)
		}
	}()
	slog.Info("sensor ready", "device", sht.String(), "id", fmt.Sprintf("0x%04X", sht.ID()))

	opts := ssd1306.DefaultOpts
	opts.Rotated = cfg.DisplayRotated
	panel, err := ssd1306.NewI2C(displayBus, &opts)
	if err != nil {
		return fmt.Errorf("ssd1306 init: %w", err)
	}
	defer func() {
		if haltErr := panel.Halt(); haltErr != nil {
			slog.Warn("ssd1306 halt", "error", haltErr)
		}
	}()

	oled, err := display.New(panel, display.Options{FlushAfterClear: cfg.DisplayFlushAfterClear})
	if err != nil {
		return err
	}
	slog.Info("display ready", "device", panel.String(), "bounds", oled.Bounds().String())

	loop := monitor.New(sht, oled, slog.Default(), cfg.DisplayGreeting)
	return loop.Run(ctx)
}
