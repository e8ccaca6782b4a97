// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for smartcam.
//
// Configuration is resolved with precedence ENV > file > defaults. Files are
// parsed strictly: unknown keys are rejected with ErrUnknownConfigField. JSON
// files are accepted as well, which keeps configuration files written by
// earlier SmartCam releases loadable.
//
// The pipeline consumes an immutable Snapshot taken at start; a reloaded
// configuration only takes effect on the next pipeline start.
package config
