// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/smartcam/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInit_WritesLoadableDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartcam_config.json")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var tree map[string]any
	require.NoError(t, json.Unmarshal(data, &tree), "init writes JSON for .json paths")
	assert.EqualValues(t, config.DefaultFPS, tree["fps"])
	assert.EqualValues(t, config.DefaultPrefix, tree["prefix"])

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHits, cfg.Hits)
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartcam.yaml")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	_, err = execute(t, "config", "init", path)
	require.ErrorIs(t, err, config.ErrConfigExists)

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("fps: 15\nout_dir: "+dir+"\n"), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("fps: 15\nunknown_key: 1\n"), 0o600))

	out, err := execute(t, "--config", good, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, err = execute(t, "-c", bad, "config", "validate")
	require.ErrorIs(t, err, config.ErrUnknownConfigField)
}

func TestConfigDump(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartcam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 12\nout_dir: "+dir+"\n"), 0o600))

	out, err := execute(t, "-c", path, "config", "dump", "--format", "json")
	require.NoError(t, err)
	var tree map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tree))
	assert.EqualValues(t, 12, tree["fps"])

	out, err = execute(t, "-c", path, "config", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "fps: 12")

	_, err = execute(t, "-c", path, "config", "dump", "--format", "toml")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--ffmpeg-bin", filepath.Join(t.TempDir(), "missing-ffmpeg"))
	require.NoError(t, err)
	assert.Contains(t, out, "smartcamd dev")
	assert.Contains(t, out, "ffmpeg: unavailable")
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SMARTCAM_CONFIG", "")
	assert.Equal(t, "/etc/smartcam.yaml", resolveConfigPath(" /etc/smartcam.yaml "))

	t.Setenv("SMARTCAM_CONFIG", "/from/env.yaml")
	assert.Equal(t, "/from/env.yaml", resolveConfigPath(""))

	t.Setenv("SMARTCAM_CONFIG", "")
	t.Chdir(t.TempDir())
	assert.Equal(t, "", resolveConfigPath(""))

	require.NoError(t, os.WriteFile(defaultConfigName, []byte("{}"), 0o600))
	got := resolveConfigPath("")
	assert.Equal(t, defaultConfigName, filepath.Base(got))
	assert.True(t, filepath.IsAbs(got))
}
