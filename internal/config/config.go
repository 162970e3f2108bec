package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds everything the server process reads from the environment.
// The 30-second ring timeout is deliberately not here: it is part of the
// call protocol, not deployment configuration.
type Config struct {
	Addr     string
	LogLevel zerolog.Level
}

const (
	defaultAddr     = ":8080"
	defaultLogLevel = zerolog.InfoLevel
)

func Load() (Config, error) {
	c := Config{
		Addr:     defaultAddr,
		LogLevel: defaultLogLevel,
	}

	if v := strings.TrimSpace(os.Getenv("WAVERLY_ADDR")); v != "" {
		if !strings.Contains(v, ":") {
			return Config{}, fmt.Errorf("WAVERLY_ADDR must be host:port or :port, got %q", v)
		}
		c.Addr = v
	}

	if v := strings.TrimSpace(os.Getenv("WAVERLY_LOG_LEVEL")); v != "" {
		level, err := zerolog.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("WAVERLY_LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}

	return c, nil
}
