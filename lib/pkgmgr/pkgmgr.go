// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgmgr wraps the host's package manager CLI. It centralizes
// binary invocation, uniform error formatting, and the mapping from
// the manager's exit codes to reconciliation outcomes.
//
// Exit-code semantics differ per package manager and are modeled as an
// explicit CodeMap on the collaborator rather than inline checks: the
// sandboxed manager used by the default profile reports "already
// installed" with a dedicated exit code, which convergence treats as
// success-equivalent (the resource is satisfied; a concurrent install
// raced us there).
package pkgmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CodeClass classifies one package-manager exit code.
type CodeClass int

const (
	// ClassFailure is the default for unmapped non-zero codes: the
	// install failed and the run must stop.
	ClassFailure CodeClass = iota

	// ClassSuccess is a normal successful exit.
	ClassSuccess

	// ClassAlreadySatisfied means the manager refused because the
	// requested state already holds. Treated as success: the probe
	// raced a concurrent install, and the desired end state is
	// reached either way.
	ClassAlreadySatisfied
)

// CodeMap maps exit codes to classes. Codes absent from the map are
// ClassFailure except 0, which is always ClassSuccess.
type CodeMap map[int]CodeClass

// Classify returns the class for an exit code.
func (m CodeMap) Classify(code int) CodeClass {
	if class, ok := m[code]; ok {
		return class
	}
	if code == 0 {
		return ClassSuccess
	}
	return ClassFailure
}

// alreadyInstalledCode is the sandboxed package manager's exit code
// for "the requested package is already installed at this revision".
// Verified against the collaborator's documented CLI contract; it does
// not cover version conflicts, which exit with a distinct code and
// stay fatal.
const alreadyInstalledCode = 10

// DefaultCodes is the code map for the default profile's package
// manager.
func DefaultCodes() CodeMap {
	return CodeMap{alreadyInstalledCode: ClassAlreadySatisfied}
}

// Installer is the package-manager collaborator as the engine sees it.
// "Is the binary present" questions go through probe.Host instead —
// a package may provide a differently-named binary, so presence is
// probed on the search path, not in the package database.
type Installer interface {
	// Install installs the named packages. Returns nil when the
	// packages end up installed, including the already-satisfied case.
	Install(ctx context.Context, names []string) error

	// RefreshIndex updates the manager's package index. Called at most
	// once per run, and only when at least one install is pending.
	RefreshIndex(ctx context.Context) error
}

// Command invokes a package manager CLI.
type Command struct {
	// Binary is the manager executable (e.g. "snap").
	Binary string

	// InstallArgs precede the package names (e.g. ["install"]).
	InstallArgs []string

	// RefreshArgs form the index-refresh invocation (e.g. ["refresh"]).
	// Empty means the manager needs no explicit refresh.
	RefreshArgs []string

	// Codes classifies the manager's exit codes.
	Codes CodeMap
}

// Test override hook for command execution.
var runCommand = func(ctx context.Context, binary string, args []string) ([]byte, int, error) {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, args...)
	command.Stderr = &stderr

	err := command.Run()
	if err == nil {
		return stderr.Bytes(), 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return stderr.Bytes(), exitError.ExitCode(), nil
	}
	return stderr.Bytes(), -1, err
}

// Install runs the install invocation for names. Exit codes classified
// as already-satisfied are success; everything else non-zero fails
// with the manager's stderr in the message (managers write their
// diagnostics to stderr).
func (c *Command) Install(ctx context.Context, names []string) error {
	args := append(append([]string{}, c.InstallArgs...), names...)

	stderr, code, err := runCommand(ctx, c.Binary, args)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.Binary, strings.Join(args, " "), err)
	}

	switch c.Codes.Classify(code) {
	case ClassSuccess, ClassAlreadySatisfied:
		return nil
	default:
		return formatError(c.Binary, args, stderr, code)
	}
}

// RefreshIndex runs the index-refresh invocation, if the manager has
// one.
func (c *Command) RefreshIndex(ctx context.Context) error {
	if len(c.RefreshArgs) == 0 {
		return nil
	}

	stderr, code, err := runCommand(ctx, c.Binary, c.RefreshArgs)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.Binary, strings.Join(c.RefreshArgs, " "), err)
	}
	if c.Codes.Classify(code) == ClassFailure {
		return formatError(c.Binary, c.RefreshArgs, stderr, code)
	}
	return nil
}

// formatError produces an error for a failed invocation, preferring
// stderr output (the actual diagnostic) over the bare exit code.
func formatError(binary string, args []string, stderr []byte, code int) error {
	commandString := binary + " " + strings.Join(args, " ")
	stderrText := strings.TrimSpace(string(stderr))
	if stderrText != "" {
		return fmt.Errorf("%s: exit %d: %s", commandString, code, stderrText)
	}
	return fmt.Errorf("%s: exit %d", commandString, code)
}
