// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/steward-project/steward/cmd/steward/apply"
	"github.com/steward-project/steward/cmd/steward/cli"
)

func main() {
	if err := run(); err != nil {
		// Commands that already printed their own output (a failed
		// checklist) return an ExitError carrying the code; no
		// redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cli.Command{
		Name:    "steward",
		Summary: "single-host configuration reconciler",
		Description: "steward converges a host toward a declared profile: packages\n" +
			"installed, services defined and running, managed configuration\n" +
			"sections in place, and the intake directory tree owned by the\n" +
			"invoking user. Re-running is always safe.",
		Subcommands: []*cli.Command{
			apply.NewApplyCommand(),
			apply.NewStatusCommand(),
		},
	}
	return root.Execute(os.Args[1:])
}
