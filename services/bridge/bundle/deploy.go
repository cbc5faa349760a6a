// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// StartScript is the bundle-relative entry point of the bridge server.
const StartScript = "package/bin/server"

// Opener returns a fresh stream of the compressed bundle.
type Opener func() (io.ReadCloser, error)

// FileOpener opens the bundle archive at path.
func FileOpener(path string) Opener {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// Bundle is an extracted worker bundle.
type Bundle struct {
	root string
}

// Root returns the absolute extraction directory.
func (b *Bundle) Root() string {
	return b.root
}

// StartScript returns the absolute path of the bridge server entry point.
func (b *Bundle) StartScript() string {
	return b.Resolve(StartScript)
}

// Resolve maps a bundle-relative, slash-separated path to an absolute one.
func (b *Bundle) Resolve(rel string) string {
	return filepath.Join(b.root, filepath.FromSlash(rel))
}

// Deployer extracts a bundle into a dedicated directory.
//
// Every Deploy wipes the directory first so files from an older bundle
// never survive an upgrade.
type Deployer struct {
	dir    string
	open   Opener
	logger *slog.Logger
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) DeployerOption {
	return func(d *Deployer) {
		d.logger = logger
	}
}

// NewDeployer creates a Deployer extracting open's archive into dir.
func NewDeployer(dir string, open Opener, opts ...DeployerOption) *Deployer {
	d := &Deployer{
		dir:    dir,
		open:   open,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy extracts the bundle and returns a handle to it.
//
// Outputs:
//
//	*Bundle - The deployed bundle.
//	error - Extraction errors from Extract, or I/O errors preparing dir.
func (d *Deployer) Deploy(ctx context.Context) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deploy bundle: %w", err)
	}
	if d.open == nil {
		return nil, errors.New("bundle opener must not be nil")
	}

	root, err := filepath.Abs(d.dir)
	if err != nil {
		return nil, fmt.Errorf("resolve deploy directory %s: %w", d.dir, err)
	}

	start := time.Now()
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("clean deploy directory %s: %w", root, err)
	}

	rc, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer rc.Close()

	if err := Extract(rc, root); err != nil {
		d.logger.Error("Failed to deploy bridge bundle",
			slog.String("dir", root),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	d.logger.Debug("Deployed bridge bundle",
		slog.String("dir", root),
		slog.Duration("duration", time.Since(start)),
	)
	return &Bundle{root: root}, nil
}
