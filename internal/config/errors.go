// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

var (
	// ErrUnknownConfigField classifies strict parse failures caused by unknown keys.
	// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrInvalidConfig is wrapped around every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedFormat is returned for config files that are neither YAML nor JSON.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)
