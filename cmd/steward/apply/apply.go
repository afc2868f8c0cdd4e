// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package apply implements `steward apply` and `steward status`: the
// privileged write path that converges the host toward the profile,
// and the unprivileged read path that reports how far off it is.
package apply

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/steward-project/steward/cmd/steward/cli"
	"github.com/steward-project/steward/lib/engine"
	"github.com/steward-project/steward/lib/identity"
	"github.com/steward-project/steward/lib/journal"
	"github.com/steward-project/steward/lib/pkgmgr"
	"github.com/steward-project/steward/lib/plan"
	"github.com/steward-project/steward/lib/probe"
	"github.com/steward-project/steward/lib/profile"
	"github.com/steward-project/steward/lib/sysd"
)

type params struct {
	profilePath string
	overlayPath string
	dryRun      bool
	jsonOutput  bool
	verbose     bool
}

func (p *params) flagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVar(&p.profilePath, "profile", "", "profile file (stock profile when omitted)")
	flags.StringVar(&p.overlayPath, "overlay", "", "host-local JSONC overlay merged over the profile")
	flags.BoolVar(&p.jsonOutput, "json", false, "emit the run report as JSON")
	flags.BoolVar(&p.verbose, "verbose", false, "debug-level logging")
	return flags
}

// NewApplyCommand is the privileged converge command.
func NewApplyCommand() *cli.Command {
	parameters := &params{}
	return &cli.Command{
		Name:    "apply",
		Summary: "converge the host to the profile's target state",
		Description: "Brings installed packages, service definitions, managed\n" +
			"configuration sections, and the intake directory tree into the\n" +
			"profile's declared state. Idempotent: re-running on a converged\n" +
			"host applies nothing and changes nothing.",
		Examples: []cli.Example{
			{Description: "converge with the stock profile", Command: "sudo steward apply"},
			{Description: "preview without touching the host", Command: "sudo steward apply --dry-run"},
			{Description: "host-specific overrides", Command: "sudo steward apply --overlay /etc/steward/host.jsonc"},
		},
		Flags: func() *pflag.FlagSet {
			flags := parameters.flagSet("apply")
			flags.BoolVar(&parameters.dryRun, "dry-run", false, "probe and report without applying")
			return flags
		},
		Run: func(args []string) error {
			return run(parameters)
		},
	}
}

// NewStatusCommand is the probe-only read path: the same checklist,
// no mutations, no privilege requirement.
func NewStatusCommand() *cli.Command {
	parameters := &params{dryRun: true}
	return &cli.Command{
		Name:    "status",
		Summary: "report how far the host is from the target state",
		Flags: func() *pflag.FlagSet {
			return parameters.flagSet("status")
		},
		Run: func(args []string) error {
			return run(parameters)
		},
	}
}

func run(parameters *params) error {
	logger := cli.NewCommandLogger(parameters.verbose)
	start := time.Now()

	declared, err := loadProfile(parameters)
	if err != nil {
		return err
	}

	// Preflight guards the write path only. Probe-only runs mutate
	// nothing, so they need neither privilege nor a supervisor.
	if !parameters.dryRun {
		if err := engine.Preflight(declared.AssetsDir); err != nil {
			return err
		}
	}

	resolved, err := identity.Resolve()
	if err != nil {
		return err
	}
	logger = logger.With("identity", resolved.Username)

	host := &probe.RealHost{ExtraBinDirs: declared.ExtraBinDirs}
	installer := &pkgmgr.Command{
		Binary:      declared.PackageManager.Binary,
		InstallArgs: declared.PackageManager.InstallArgs,
		RefreshArgs: declared.PackageManager.RefreshArgs,
		Codes:       pkgmgr.DefaultCodes(),
	}
	activator := sysd.NewActivator(&sysd.Systemctl{}, logger)

	resources, err := plan.Build(plan.Inputs{
		Profile:   declared,
		Identity:  resolved,
		Host:      host,
		Installer: installer,
		Activator: activator,
	})
	if err != nil {
		return err
	}

	runner := &engine.Engine{Logger: logger, DryRun: parameters.dryRun}
	outcomes, convergeErr := runner.Converge(context.Background(), resources)

	profileDigest, err := declared.Digest()
	if err != nil {
		return err
	}

	report := &Report{
		Identity:      resolved.Username,
		ProfileDigest: profileDigest.String(),
		DryRun:        parameters.dryRun,
		Outcomes:      outcomes,
	}

	if !parameters.dryRun {
		// Root-owned leftovers inside the identity's trees break the
		// services running as that identity; sweep the whole home and
		// the data root (when it lives elsewhere) even after a partial
		// run, so whatever was created is usable.
		for _, root := range sweepRoots(resolved, declared) {
			if _, statErr := os.Stat(root); statErr != nil {
				continue
			}
			if sweepErr := resolved.OwnTree(root); sweepErr != nil {
				if convergeErr == nil {
					convergeErr = sweepErr
				} else {
					logger.Error("ownership sweep failed", "root", root, "error", sweepErr)
				}
			}
		}

		record := journal.NewRecord(start, profileDigest, false, outcomes)
		if journalErr := journal.Append(declared.JournalPath, record); journalErr != nil {
			// The journal is an audit trail, not a correctness
			// dependency; a failed append must not fail the run.
			logger.Error("journal append failed", "error", journalErr)
		}
	}

	if parameters.jsonOutput {
		if err := cli.WriteJSON(report); err != nil {
			return err
		}
	} else {
		report.PrintChecklist(os.Stdout)
	}

	if convergeErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", convergeErr)
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// sweepRoots returns the trees the end-of-run ownership sweep covers:
// the identity's home, plus the data root when it lives outside home.
func sweepRoots(resolved *identity.Identity, declared *profile.Profile) []string {
	roots := []string{resolved.Home}
	dataRoot := resolved.Path(declared.DataRoot)
	if !strings.HasPrefix(dataRoot, resolved.Home+string(os.PathSeparator)) && dataRoot != resolved.Home {
		roots = append(roots, dataRoot)
	}
	return roots
}

func loadProfile(parameters *params) (*profile.Profile, error) {
	declared := profile.Default()
	if parameters.profilePath != "" {
		loaded, err := profile.LoadFile(parameters.profilePath)
		if err != nil {
			return nil, err
		}
		declared = loaded
	}
	if parameters.overlayPath != "" {
		if err := declared.ApplyOverlay(parameters.overlayPath); err != nil {
			return nil, err
		}
	}
	return declared, nil
}
