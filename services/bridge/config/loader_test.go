// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "14.17.0", cfg.Nodejs.MinVersion)
	assert.Equal(t, bridge.DefaultHost, cfg.Bridge.Host)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, bridge.ModeDefault, cfg.AnalysisMode())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
nodejs:
  executable: /opt/node/bin/node
  max_old_space_size: 4096
bridge:
  bundle: dist/bridge.tgz
  startup_timeout: 90s
  additional_rule_bundles: [/rules/extra.tgz]
analysis:
  mode: skip-unchanged
  roots: [src]
  rules:
    - key: no-var
    - key: max-len
      configurations: [120]
      file_type_target: [MAIN, TEST]
  unchanged_rules: [no-unused-vars]
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/node/bin/node", cfg.Nodejs.Executable)
	assert.Equal(t, 4096, cfg.Nodejs.MaxOldSpaceSize)
	assert.Equal(t, "14.17.0", cfg.Nodejs.MinVersion, "untouched keys keep defaults")
	assert.Equal(t, "dist/bridge.tgz", cfg.Bridge.Bundle)
	assert.Equal(t, 90*time.Second, cfg.Bridge.StartupTimeout)
	assert.Equal(t, bridge.DefaultShutdownTimeout, cfg.Bridge.ShutdownTimeout)
	assert.Equal(t, []string{"/rules/extra.tgz"}, cfg.Bridge.RuleBundles())
	assert.Equal(t, bridge.ModeSkipUnchanged, cfg.AnalysisMode())
	assert.Equal(t, []string{"src"}, cfg.Analysis.Roots)
	assert.Equal(t, "debug", cfg.Logging.Level)

	rules := cfg.BridgeRules()
	require.Len(t, rules, 2)
	assert.Equal(t, []bridge.FileType{bridge.FileTypeMain}, rules[0].FileTypeTarget)
	assert.Equal(t, []any{}, rules[0].Configurations)
	assert.Equal(t, []bridge.FileType{bridge.FileTypeMain, bridge.FileTypeTest}, rules[1].FileTypeTarget)
	assert.Equal(t, []any{120}, rules[1].Configurations)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown mode", "analysis:\n  mode: fast\n"},
		{"bad min version", "nodejs:\n  min_version: fourteen\n"},
		{"negative heap", "nodejs:\n  max_old_space_size: -1\n"},
		{"rule without key", "analysis:\n  rules:\n    - configurations: [1]\n"},
		{"bad file type", "analysis:\n  rules:\n    - key: r\n      file_type_target: [DOCS]\n"},
		{"cache without path", "cache:\n  enabled: true\n  path: \"\"\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"zero startup timeout", "bridge:\n  startup_timeout: 0s\n"},
		{"unknown encoding", "analysis:\n  encoding: klingon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "analysis:\n  moed: default\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moed")
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("logging:\n  quiet: true\n"), 0o644))
	cfg, err = LoadDir(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Logging.Quiet)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lintbridge", DefaultFileName)
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestNodeConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nodejs.Env = map[string]string{"NODE_ENV": "production"}

	node, err := cfg.NodeConfig()
	require.NoError(t, err)
	assert.Equal(t, "14.17.0", node.MinVersion.String())
	assert.Equal(t, "production", node.Env["NODE_ENV"])

	cfg.Nodejs.MinVersion = ""
	node, err = cfg.NodeConfig()
	require.NoError(t, err)
	assert.True(t, node.MinVersion.IsZero())
}

func TestSourceEncoding(t *testing.T) {
	cfg, err := Load(writeConfig(t, "analysis:\n  encoding: latin1\n"))
	require.NoError(t, err)
	enc, err := cfg.SourceEncoding()
	require.NoError(t, err)
	name, err := htmlindex.Name(enc)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", name)

	defaults := DefaultConfig()
	enc, err = defaults.SourceEncoding()
	require.NoError(t, err)
	assert.Nil(t, enc)
}

func TestMaxFileSizeBytes(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(1000*1024), cfg.MaxFileSizeBytes())
}
