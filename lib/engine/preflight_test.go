// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"os"
	"testing"

	"github.com/steward-project/steward/lib/resource"
)

// withPreflightHost fakes the effective UID and the set of existing
// directories for the duration of a test.
func withPreflightHost(t *testing.T, uid int, directories ...string) {
	t.Helper()

	existing := make(map[string]bool, len(directories))
	for _, directory := range directories {
		existing[directory] = true
	}

	originalUID, originalStat := effectiveUID, statPath
	t.Cleanup(func() { effectiveUID, statPath = originalUID, originalStat })

	effectiveUID = func() int { return uid }
	statPath = func(path string) (os.FileInfo, error) {
		if existing[path] {
			// Any real directory serves as a stand-in FileInfo.
			return os.Stat(os.TempDir())
		}
		return nil, os.ErrNotExist
	}
}

func preflightCheck(t *testing.T, err error) *resource.PreflightError {
	t.Helper()
	var preflightError *resource.PreflightError
	if !errors.As(err, &preflightError) {
		t.Fatalf("error type %T, want *resource.PreflightError (%v)", err, err)
	}
	return preflightError
}

func TestPreflightPasses(t *testing.T) {
	withPreflightHost(t, 0, supervisorMarker, "/srv/assets")
	if err := Preflight("/srv/assets"); err != nil {
		t.Errorf("Preflight: %v", err)
	}
}

func TestPreflightRequiresRoot(t *testing.T) {
	withPreflightHost(t, 1000, supervisorMarker)
	failure := preflightCheck(t, Preflight(""))
	if failure.Check != "root privilege" {
		t.Errorf("Check = %q", failure.Check)
	}
}

func TestPreflightRequiresSupervisor(t *testing.T) {
	withPreflightHost(t, 0)
	failure := preflightCheck(t, Preflight(""))
	if failure.Check != "service supervisor" {
		t.Errorf("Check = %q", failure.Check)
	}
}

func TestPreflightRequiresDeclaredAssets(t *testing.T) {
	withPreflightHost(t, 0, supervisorMarker)
	failure := preflightCheck(t, Preflight("/srv/assets"))
	if failure.Check != "static assets" {
		t.Errorf("Check = %q", failure.Check)
	}

	// No declared assets: the check is skipped.
	if err := Preflight(""); err != nil {
		t.Errorf("Preflight without assets: %v", err)
	}
}
