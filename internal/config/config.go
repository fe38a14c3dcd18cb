package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// I2CBus is the periph bus name passed to i2creg.Open ("" picks the first bus, usually /dev/i2c-1).
	// The data/clock pins are the ones wired to that bus.
	I2CBus       string
	I2CFrequency physic.Frequency

	SHTC3Address uint16

	DisplayRotated bool
	// DisplayFlushAfterClear pushes the cleared buffer to the panel before any text is drawn.
	DisplayFlushAfterClear bool
	DisplayGreeting        string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	i2cBus := strings.TrimSpace(os.Getenv("I2C_BUS"))

	i2cFrequencyStr := strings.TrimSpace(os.Getenv("I2C_FREQUENCY"))
	if i2cFrequencyStr == "" {
		i2cFrequencyStr = "400kHz"
	}
	var i2cFrequency physic.Frequency
	if err := i2cFrequency.Set(i2cFrequencyStr); err != nil {
		return Config{}, fmt.Errorf("invalid I2C_FREQUENCY %q: %w", i2cFrequencyStr, err)
	}
	if i2cFrequency <= 0 {
		return Config{}, fmt.Errorf("I2C_FREQUENCY must be positive, got %v", i2cFrequency)
	}

	shtc3AddressStr := strings.TrimSpace(os.Getenv("SHTC3_ADDRESS"))
	if shtc3AddressStr == "" {
		shtc3AddressStr = "0x70"
	}
	shtc3Address, err := strconv.ParseUint(shtc3AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SHTC3_ADDRESS %q: %w", shtc3AddressStr, err)
	}
	if shtc3Address > 0x7F {
		return Config{}, fmt.Errorf("SHTC3_ADDRESS must be a 7-bit address, got %#x", shtc3Address)
	}

	displayRotated, err := parseBool("DISPLAY_ROTATED", false)
	if err != nil {
		return Config{}, err
	}

	displayFlushAfterClear, err := parseBool("DISPLAY_FLUSH_AFTER_CLEAR", true)
	if err != nil {
		return Config{}, err
	}

	displayGreeting := strings.TrimSpace(os.Getenv("DISPLAY_GREETING"))
	if displayGreeting == "" {
		displayGreeting = "I love you, Mercedes!"
	}

	return Config{
		AppEnv:                 appEnv,
		LogLevel:               level,
		I2CBus:                 i2cBus,
		I2CFrequency:           i2cFrequency,
		SHTC3Address:           uint16(shtc3Address),
		DisplayRotated:         displayRotated,
		DisplayFlushAfterClear: displayFlushAfterClear,
		DisplayGreeting:        displayGreeting,
	}, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
