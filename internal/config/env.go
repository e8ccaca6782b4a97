// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/rs/zerolog"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "SMARTCAM_"

// parseEnv reads key from the environment and converts it with parse.
// Empty or unparsable values fall back to defaultValue. The chosen source is
// logged for observability.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error), kind string) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok {
		logSource(logger.Debug(), key, defaultValue, "default").Msg("using default value")
		return defaultValue
	}
	if v == "" {
		logSource(logger.Debug(), key, defaultValue, "default").Msg("using default value (environment variable is empty)")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msgf("invalid %s in environment variable, using default", kind)
		return defaultValue
	}
	logSource(logger.Debug(), key, parsed, "environment").Msg("using environment variable")
	return parsed
}

func logSource(ev *zerolog.Event, key string, value any, source string) *zerolog.Event {
	ev = ev.Str("key", key).Str("source", source)
	if source == "default" {
		return ev.Interface("default", value)
	}
	return ev.Interface("value", value)
}

// ParseString reads a string from environment variable or returns default value.
func ParseString(key, defaultValue string) string {
	return parseEnv(key, defaultValue, func(s string) (string, error) { return s, nil }, "string")
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi, "integer")
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration, "duration")
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, "float")
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, parseBool, "boolean")
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}
