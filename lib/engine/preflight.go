// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"os"

	"github.com/steward-project/steward/lib/resource"
)

// supervisorMarker exists only on hosts where the service supervisor
// is PID 1's init system.
const supervisorMarker = "/run/systemd/system"

// Variables rather than constants to allow test overrides.
var (
	effectiveUID = os.Geteuid
	statPath     = os.Stat
)

// Preflight verifies the run's preconditions before anything is
// probed or touched. Any failure returns a *resource.PreflightError
// and the caller must exit without partial action.
//
// assetsDir is the declared static content directory; empty means the
// profile declares none and the check is skipped. The tool installs
// and wires services, it does not fabricate their content — missing
// assets are an operator problem preflight surfaces early.
func Preflight(assetsDir string) error {
	if effectiveUID() != 0 {
		return &resource.PreflightError{
			Check:  "root privilege",
			Reason: "must run as root (installs packages and writes service definitions); invoke via sudo",
		}
	}

	if info, err := statPath(supervisorMarker); err != nil || !info.IsDir() {
		return &resource.PreflightError{
			Check:  "service supervisor",
			Reason: fmt.Sprintf("%s not present; this host is not running the supported service supervisor", supervisorMarker),
		}
	}

	if assetsDir != "" {
		info, err := statPath(assetsDir)
		if err != nil || !info.IsDir() {
			return &resource.PreflightError{
				Check:  "static assets",
				Reason: fmt.Sprintf("declared assets directory %s is missing", assetsDir),
			}
		}
	}
	return nil
}
