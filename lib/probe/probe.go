// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe inspects host state without mutating it. The Host
// abstraction is the single seam between the convergence engine and
// the live machine: production code uses RealHost, tests substitute a
// host rooted in a temporary directory and assert against it instead
// of depending on real OS mutation.
//
// Side-effect freedom is a hard invariant. Probing never installs,
// writes, or starts anything — dry-run reporting is built entirely on
// probes, so a mutating probe would silently break it.
package probe

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/steward-project/steward/lib/resource"
)

// Host is read-only access to the machine under reconciliation.
type Host interface {
	// LookPath resolves an executable by name. The search must cover
	// any non-standard install roots (e.g. a sandboxed package
	// manager's bin directory) in addition to PATH.
	LookPath(name string) (string, error)

	// Stat reports on a filesystem path.
	Stat(path string) (os.FileInfo, error)

	// ReadFile returns a file's content.
	ReadFile(path string) ([]byte, error)

	// OwnerUID returns the numeric UID owning a path.
	OwnerUID(path string) (int, error)
}

// RealHost probes the live machine.
type RealHost struct {
	// ExtraBinDirs are searched after PATH fails. Sandboxed package
	// managers install binaries outside the default PATH (e.g.
	// /snap/bin), so package probes must look there too.
	ExtraBinDirs []string
}

// LookPath checks PATH first (works for natively installed binaries),
// then each extra bin directory.
func (h *RealHost) LookPath(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	for _, directory := range h.ExtraBinDirs {
		candidate := filepath.Join(directory, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found on PATH or in %v", name, h.ExtraBinDirs)
}

func (h *RealHost) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (h *RealHost) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (h *RealHost) OwnerUID(path string) (int, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return int(stat.Uid), nil
}

// Binary probes whether an executable is resolvable. Packages are
// probed this way rather than by package-database membership: what the
// run actually depends on is the binary, and a package may provide a
// differently-named one.
func Binary(host Host, name string) (resource.State, error) {
	if _, err := host.LookPath(name); err != nil {
		return resource.StateAbsent, nil
	}
	return resource.StateSatisfied, nil
}

// FileExists probes a path's presence. Content correctness is the
// engine's job (delegated to an idempotent applier), so existence is
// all a file probe reports.
func FileExists(host Host, path string) (resource.State, error) {
	if _, err := host.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return resource.StateAbsent, nil
		}
		return resource.StateAbsent, fmt.Errorf("stat %s: %w", path, err)
	}
	return resource.StateSatisfied, nil
}

// Directory probes whether path exists and is a directory. A path that
// exists but is not a directory reports PartiallyPresent so the
// failure surfaces during apply with a usable message rather than as a
// silent skip.
func Directory(host Host, path string) (resource.State, error) {
	info, err := host.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return resource.StateAbsent, nil
		}
		return resource.StateAbsent, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return resource.StatePartiallyPresent, nil
	}
	return resource.StateSatisfied, nil
}
