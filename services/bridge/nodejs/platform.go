// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodejs

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Platform selects the default executable resolution strategy.
type Platform int

const (
	// PlatformLinux and every other Unix: "node", found by the OS at spawn.
	PlatformLinux Platform = iota

	// PlatformMac uses the run-node wrapper shipped inside the bundle.
	PlatformMac

	// PlatformWindows looks node.exe up in PATH before spawning.
	PlatformWindows
)

var platformNames = []string{"linux", "mac", "windows"}

// String returns the platform name.
func (p Platform) String() string {
	if int(p) < len(platformNames) && p >= 0 {
		return platformNames[p]
	}
	return "unknown"
}

// CurrentPlatform maps runtime.GOOS to a Platform.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMac
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// Default executable names and bundle-relative paths.
const (
	// DefaultExecutable is the executable name handed to the OS on Unix.
	DefaultExecutable = "node"

	// DefaultMacExecutable is the bundle-relative run-node wrapper, which
	// sources the user's shell profile so a node from nvm or brew is found.
	DefaultMacExecutable = "package/node_modules/run-node/run-node"

	windowsExecutable = "node.exe"
)

// PathLookup finds an executable by name in PATH. exec.LookPath satisfies it.
type PathLookup func(name string) (string, error)

// PathResolver maps a bundle-relative path to an absolute path.
type PathResolver func(rel string) string

// resolution carries what the platform strategies need to pick an executable.
type resolution struct {
	platform     Platform
	pathResolver PathResolver
	lookPath     PathLookup
	logger       *slog.Logger
}

// executableResolver is a per-platform default executable strategy.
type executableResolver func(r resolution) (string, error)

var platformResolvers = map[Platform]executableResolver{
	PlatformLinux:   resolveUnixDefault,
	PlatformMac:     resolveMacDefault,
	PlatformWindows: resolveWindowsDefault,
}

// resolveExecutable applies the priority order: explicit override, then
// the platform default.
func (r resolution) resolveExecutable(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			r.logger.Error("Provided Node.js executable file does not exist",
				slog.String("executable", override),
			)
			return "", configError("Provided Node.js executable file does not exist.")
		}
		r.logger.Info("Using Node.js executable from configuration",
			slog.String("executable", override),
		)
		return override, nil
	}

	resolver, ok := platformResolvers[r.platform]
	if !ok {
		resolver = resolveUnixDefault
	}
	return resolver(r)
}

func resolveUnixDefault(resolution) (string, error) {
	return DefaultExecutable, nil
}

func resolveMacDefault(r resolution) (string, error) {
	if r.pathResolver == nil {
		return DefaultExecutable, nil
	}
	exe := r.pathResolver(DefaultMacExecutable)
	if _, err := os.Stat(exe); err != nil {
		return "", configError("Default Node.js executable for MacOS does not exist.")
	}
	return exe, nil
}

func resolveWindowsDefault(r resolution) (string, error) {
	path, err := r.lookPath(windowsExecutable)
	if err != nil || path == "" {
		return "", configError(fmt.Sprintf("Node.js not found in PATH. PATH value was: %s", os.Getenv("PATH")))
	}
	r.logger.Debug("Using Node.js from PATH", slog.String("executable", path))
	return path, nil
}
