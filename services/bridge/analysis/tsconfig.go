// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"fmt"
	"sync"
)

// TsConfigProvider supplies the tsconfig files sent with every request.
type TsConfigProvider interface {
	TsConfigs(ctx context.Context) ([]string, error)
}

// StaticTsConfigs is a fixed list of tsconfig paths.
type StaticTsConfigs []string

// TsConfigs implements TsConfigProvider.
func (s StaticTsConfigs) TsConfigs(context.Context) ([]string, error) {
	return s, nil
}

// TsConfigCreator writes synthesized tsconfig content worker-side.
// *bridge.Client satisfies it.
type TsConfigCreator interface {
	CreateTsConfigFile(ctx context.Context, content string) (string, error)
}

// GeneratedTsConfig asks the worker to persist Content once per session and
// returns the resulting path on every call.
//
// Thread Safety: Safe for concurrent use.
type GeneratedTsConfig struct {
	creator TsConfigCreator
	content string

	mu       sync.Mutex
	filename string
}

// NewGeneratedTsConfig creates a provider for synthesized tsconfig content.
func NewGeneratedTsConfig(creator TsConfigCreator, content string) *GeneratedTsConfig {
	return &GeneratedTsConfig{creator: creator, content: content}
}

// TsConfigs implements TsConfigProvider. A failed creation is retried on the
// next call.
func (g *GeneratedTsConfig) TsConfigs(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.filename == "" {
		name, err := g.creator.CreateTsConfigFile(ctx, g.content)
		if err != nil {
			return nil, fmt.Errorf("create tsconfig file: %w", err)
		}
		g.filename = name
	}
	return []string{g.filename}, nil
}
