// Command cloudpico-display shows SHTC3 temperature and humidity on an
// SSD1306 panel sharing the same I2C bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloudpico-display/internal/app"
	"cloudpico-display/internal/config"
	"cloudpico-display/internal/logging"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const appName = "cloudpico-display"

func main() {
	if err := run(); err != nil {
		slog.Error("display stopped", "err", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so the bus and devices are released by
// their defers before the process ends.
func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logging.New(cfg, version, appName))

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"i2c_bus", cfg.I2CBus,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg)
	if errors.Is(err, context.Canceled) {
		slog.Info("shutting down")
		return nil
	}
	return err
}
