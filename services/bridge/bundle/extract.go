// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bundle extracts and deploys the bridge worker's bootstrap code.
//
// The worker ships as a gzip-compressed tar archive. Extraction refuses any
// entry whose resolved path is not a descendant of the extraction root, so
// a crafted archive cannot write outside the deploy directory.
package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Extract unpacks a gzip-compressed tar stream under targetRoot.
//
// Description:
//
//	Directories are created as encountered; regular files get their parent
//	directories on demand and their content streamed. The first unsafe or
//	unreadable entry aborts the whole extraction. Entries already written
//	are left in place.
//
// Inputs:
//
//	r - The compressed archive stream.
//	targetRoot - Extraction root. Created if missing.
//
// Outputs:
//
//	error - *SecurityError (ErrEntryOutsideRoot) for path traversal,
//	        ErrBundleCorrupt for unreadable data or unsupported entries.
func Extract(r io.Reader, targetRoot string) error {
	root, err := filepath.Abs(targetRoot)
	if err != nil {
		return fmt.Errorf("resolve extraction root %s: %w", targetRoot, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create extraction root %s: %w", root, err)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBundleCorrupt, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBundleCorrupt, err)
		}

		dest, err := entryPath(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", dest, err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader:
			// PAX metadata only.
		default:
			return fmt.Errorf("%w: entry %s has unsupported type %q", ErrBundleCorrupt, hdr.Name, hdr.Typeflag)
		}
	}
}

// entryPath resolves name under root and rejects anything that escapes it.
func entryPath(root, name string) (string, error) {
	native := filepath.FromSlash(name)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", &SecurityError{Entry: name, Root: root}
	}
	dest := filepath.Join(root, native)
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &SecurityError{Entry: name, Root: root}
	}
	return dest, nil
}

func writeFile(dest string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(dest), err)
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %v", ErrBundleCorrupt, dest, err)
	}
	return f.Close()
}
