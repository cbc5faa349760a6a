// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the lintbridge.yaml project configuration.
package config

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding"

	"github.com/AleutianAI/lintbridge/services/bridge/bridge"
	"github.com/AleutianAI/lintbridge/services/bridge/inputs"
	"github.com/AleutianAI/lintbridge/services/bridge/nodejs"
)

// DefaultFileName is looked up in the project directory.
const DefaultFileName = "lintbridge.yaml"

// Config is the complete lintbridge configuration.
type Config struct {
	// Nodejs configures the engine that runs the worker.
	Nodejs NodejsConfig `yaml:"nodejs"`

	// Bridge configures the worker bundle and process.
	Bridge BridgeConfig `yaml:"bridge"`

	// Cache configures incremental analysis.
	Cache CacheConfig `yaml:"cache"`

	// Analysis selects files and rules.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`
}

type NodejsConfig struct {
	// Executable overrides the platform default, e.g. /usr/local/bin/node.
	Executable string `yaml:"executable,omitempty"`

	// MinVersion is the lowest accepted engine version, e.g. 14.17.0.
	MinVersion string `yaml:"min_version" validate:"omitempty,nodeversion"`

	// MaxOldSpaceSize is the engine heap in MB. 0 keeps the default.
	MaxOldSpaceSize int `yaml:"max_old_space_size" validate:"gte=0"`

	Args                []string          `yaml:"args,omitempty"`
	Env                 map[string]string `yaml:"env,omitempty"`
	VersionCheckTimeout time.Duration     `yaml:"version_check_timeout" validate:"gte=0"`
}

type BridgeConfig struct {
	// Bundle is the gzip tar archive holding the worker code.
	Bundle string `yaml:"bundle" validate:"required"`

	// DeployDir is where the bundle is extracted. Wiped on every run.
	DeployDir string `yaml:"deploy_dir" validate:"required"`

	Host                 string        `yaml:"host" validate:"required"`
	Port                 int           `yaml:"port" validate:"gte=0,lte=65535"`
	WorkDir              string        `yaml:"work_dir,omitempty"`
	AllowTsParserJsFiles bool          `yaml:"allow_ts_parser_js_files"`
	StartupTimeout       time.Duration `yaml:"startup_timeout" validate:"gt=0"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout       time.Duration `yaml:"request_timeout" validate:"gt=0"`

	// AdditionalRuleBundles are loaded into the worker at startup.
	AdditionalRuleBundles []string `yaml:"additional_rule_bundles,omitempty"`
}

// RuleBundles implements bridge.RuleBundleProvider.
func (b BridgeConfig) RuleBundles() []string {
	return b.AdditionalRuleBundles
}

type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Path           string        `yaml:"path" validate:"required_if=Enabled true"`
	GCInterval     time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

type AnalysisConfig struct {
	// Mode is "default" or "skip-unchanged".
	Mode string `yaml:"mode" validate:"oneof=default skip-unchanged"`

	// Roots are source directories relative to the project directory.
	Roots []string `yaml:"roots,omitempty"`

	Exclusions   []string `yaml:"exclusions,omitempty"`
	TestPatterns []string `yaml:"test_patterns,omitempty"`

	// MaxFileSizeKB skips larger files. 0 disables the limit.
	MaxFileSizeKB int64 `yaml:"max_file_size_kb" validate:"gte=0"`

	SendContent          bool `yaml:"send_content"`
	IgnoreHeaderComments bool `yaml:"ignore_header_comments"`

	// Encoding is the charset of the sources, e.g. "windows-1252". Files
	// are decoded to UTF-8 before they reach the worker. Empty means UTF-8.
	Encoding string `yaml:"encoding,omitempty" validate:"omitempty,charset"`

	Environments []string `yaml:"environments,omitempty"`
	Globals      []string `yaml:"globals,omitempty"`
	Rules        []Rule   `yaml:"rules" validate:"dive"`

	// UnchangedRules are the rule keys still applied to unchanged files in
	// skip-unchanged mode.
	UnchangedRules []string `yaml:"unchanged_rules,omitempty"`

	// TsConfigs are tsconfig.json paths sent with every request.
	TsConfigs []string `yaml:"tsconfigs,omitempty"`

	// GeneratedTsConfig is tsconfig JSON written worker-side and used when
	// TsConfigs is empty.
	GeneratedTsConfig string `yaml:"generated_tsconfig,omitempty"`

	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gte=0"`
}

type Rule struct {
	Key            string   `yaml:"key" validate:"required"`
	Configurations []any    `yaml:"configurations,omitempty"`
	FileTypeTarget []string `yaml:"file_type_target,omitempty" validate:"dive,oneof=MAIN TEST"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

func DefaultConfig() Config {
	return Config{
		Nodejs: NodejsConfig{
			MinVersion:          "14.17.0",
			VersionCheckTimeout: nodejs.DefaultVersionCheckTimeout,
		},
		Bridge: BridgeConfig{
			Bundle:          "bridge.tgz",
			DeployDir:       ".lintbridge/bridge",
			Host:            bridge.DefaultHost,
			StartupTimeout:  bridge.DefaultStartupTimeout,
			ShutdownTimeout: bridge.DefaultShutdownTimeout,
			RequestTimeout:  bridge.DefaultRequestTimeout,
		},
		Cache: CacheConfig{
			Enabled:        true,
			Path:           ".lintbridge/cache",
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Analysis: AnalysisConfig{
			Mode:             bridge.ModeDefault.String(),
			MaxFileSizeKB:    1000,
			Environments:     []string{"browser", "node"},
			Rules:            []Rule{},
			ProgressInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// NodeConfig returns the engine settings of the worker command.
func (c *Config) NodeConfig() (nodejs.Config, error) {
	cfg := nodejs.Config{
		Executable:          c.Nodejs.Executable,
		MaxOldSpaceSize:     c.Nodejs.MaxOldSpaceSize,
		NodeArgs:            c.Nodejs.Args,
		Env:                 c.Nodejs.Env,
		VersionCheckTimeout: c.Nodejs.VersionCheckTimeout,
	}
	if c.Nodejs.MinVersion != "" {
		v, err := nodejs.ParseVersion(c.Nodejs.MinVersion)
		if err != nil {
			return nodejs.Config{}, err
		}
		cfg.MinVersion = v
	}
	return cfg, nil
}

// AnalysisMode returns the parsed analysis mode.
func (c *Config) AnalysisMode() bridge.AnalysisMode {
	m, err := bridge.ParseAnalysisMode(c.Analysis.Mode)
	if err != nil {
		return bridge.ModeDefault
	}
	return m
}

// BridgeRules converts the configured rules to the wire form.
func (c *Config) BridgeRules() []bridge.Rule {
	rules := make([]bridge.Rule, 0, len(c.Analysis.Rules))
	for _, r := range c.Analysis.Rules {
		targets := r.FileTypeTarget
		if len(targets) == 0 {
			targets = []string{string(bridge.FileTypeMain)}
		}
		rule := bridge.Rule{
			Key:            r.Key,
			Configurations: r.Configurations,
			FileTypeTarget: make([]bridge.FileType, 0, len(targets)),
		}
		if rule.Configurations == nil {
			rule.Configurations = []any{}
		}
		for _, t := range targets {
			rule.FileTypeTarget = append(rule.FileTypeTarget, bridge.FileType(t))
		}
		rules = append(rules, rule)
	}
	return rules
}

// MaxFileSizeBytes returns the file size limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Analysis.MaxFileSizeKB * 1024
}

// SourceEncoding resolves Analysis.Encoding. A nil Encoding means UTF-8.
func (c *Config) SourceEncoding() (encoding.Encoding, error) {
	return inputs.LookupEncoding(c.Analysis.Encoding)
}

// String summarizes the configuration for logs.
func (c *Config) String() string {
	return fmt.Sprintf("bundle=%s mode=%s cache=%t rules=%d", c.Bridge.Bundle, c.Analysis.Mode, c.Cache.Enabled, len(c.Analysis.Rules))
}
