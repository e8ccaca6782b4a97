// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when the target already exists
// and overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// LoadFile loads a config file over defaults without applying env overrides
// or validation.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	err := NewLoader(path).loadFile(path, &cfg)
	return cfg, err
}

// Marshal encodes cfg for path's format: JSON for .json, YAML otherwise.
func Marshal(cfg Config, path string) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return data, nil
	}

	// Round-trip through a generic tree so durations stay human-readable
	// strings ("30s"), which the strict loader accepts.
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return append(out, '\n'), nil
}

// WriteDefault atomically writes the default configuration to path.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	return Write(path, Default())
}

// Write atomically replaces path with cfg.
func Write(path string, cfg Config) error {
	data, err := Marshal(cfg, path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
