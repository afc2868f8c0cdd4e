// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package sysd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/steward-project/steward/lib/atomicfile"
)

// Supervisor is the service-manager collaborator. Production code uses
// Systemctl; tests substitute a fake that records calls.
type Supervisor interface {
	// WriteUnit installs a unit definition under the given full unit
	// name, returning whether the bytes on disk changed.
	WriteUnit(name string, content []byte) (changed bool, err error)

	// ReloadDefinitions makes the supervisor re-read its definition
	// set. Required after any WriteUnit change and sufficient once per
	// run regardless of how many definitions changed.
	ReloadDefinitions(ctx context.Context) error

	// EnableAndStart enables the named units at boot and starts them
	// now, in one invocation.
	EnableAndStart(ctx context.Context, names []string) error

	// Restart restarts the named units in one invocation.
	Restart(ctx context.Context, names []string) error

	// IsRegistered reports whether the supervisor knows a unit by name.
	IsRegistered(ctx context.Context, name string) (bool, error)

	// IsEnabled reports whether a unit is enabled at boot.
	IsEnabled(ctx context.Context, name string) (bool, error)

	// IsActive reports whether a unit is currently running.
	IsActive(ctx context.Context, name string) (bool, error)
}

// Systemctl drives systemd through its CLI.
type Systemctl struct {
	// UnitDir is where unit definitions are written. Defaults to the
	// system administrator unit directory.
	UnitDir string
}

// DefaultUnitDir is the system administrator's unit directory, as
// opposed to the package-manager-owned /usr/lib tree.
const DefaultUnitDir = "/etc/systemd/system"

// Test override hook for systemctl invocations. Returns combined
// stdout, the exit code, and any invocation error.
var runSystemctl = func(ctx context.Context, args ...string) ([]byte, int, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "systemctl", args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	if err == nil {
		return stdout.Bytes(), 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return stdout.Bytes(), exitError.ExitCode(), nil
	}
	return nil, -1, fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
}

func (s *Systemctl) unitDir() string {
	if s.UnitDir != "" {
		return s.UnitDir
	}
	return DefaultUnitDir
}

// WriteUnit writes the definition atomically, skipping the write when
// the on-disk bytes already match so converged re-runs leave no new
// timestamps.
func (s *Systemctl) WriteUnit(name string, content []byte) (bool, error) {
	path := filepath.Join(s.unitDir(), name)

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read unit %s: %w", path, err)
	}

	if err := atomicfile.WriteFile(path, content, 0644); err != nil {
		return false, fmt.Errorf("write unit %s: %w", path, err)
	}
	return true, nil
}

// ReloadDefinitions runs daemon-reload.
func (s *Systemctl) ReloadDefinitions(ctx context.Context) error {
	return s.run(ctx, "daemon-reload")
}

// EnableAndStart enables and starts all named units in one call.
func (s *Systemctl) EnableAndStart(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return s.run(ctx, append([]string{"enable", "--now"}, names...)...)
}

// Restart restarts all named units in one call.
func (s *Systemctl) Restart(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return s.run(ctx, append([]string{"restart"}, names...)...)
}

// IsRegistered asks systemd for the unit's load state. "not-found"
// means systemd has no definition under that name; anything loaded or
// even load-failed counts as registered.
func (s *Systemctl) IsRegistered(ctx context.Context, name string) (bool, error) {
	stdout, _, err := runSystemctl(ctx, "show", "--property=LoadState", "--value", name)
	if err != nil {
		return false, err
	}
	state := strings.TrimSpace(string(stdout))
	return state != "" && state != "not-found", nil
}

// IsEnabled reports boot enablement. systemctl is-enabled exits
// non-zero for disabled units, so only the invocation error is fatal.
func (s *Systemctl) IsEnabled(ctx context.Context, name string) (bool, error) {
	stdout, code, err := runSystemctl(ctx, "is-enabled", name)
	if err != nil {
		return false, err
	}
	return code == 0 && strings.TrimSpace(string(stdout)) == "enabled", nil
}

// IsActive reports whether the unit is running right now.
func (s *Systemctl) IsActive(ctx context.Context, name string) (bool, error) {
	stdout, code, err := runSystemctl(ctx, "is-active", name)
	if err != nil {
		return false, err
	}
	return code == 0 && strings.TrimSpace(string(stdout)) == "active", nil
}

// run executes a mutating systemctl invocation, failing on any
// non-zero exit.
func (s *Systemctl) run(ctx context.Context, args ...string) error {
	_, code, err := runSystemctl(ctx, args...)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("systemctl %s: exit %d", strings.Join(args, " "), code)
	}
	return nil
}
