// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"fmt"
	"io"
	"strings"

	"github.com/steward-project/steward/lib/resource"
)

// Report is the run summary emitted to operators and, via --json, to
// CI.
type Report struct {
	// Identity is the resolved unprivileged account.
	Identity string `json:"identity"`

	// ProfileDigest identifies the converged profile's content.
	ProfileDigest string `json:"profile_digest"`

	// DryRun marks reports produced without mutating the host.
	DryRun bool `json:"dry_run"`

	Outcomes []resource.Outcome `json:"outcomes"`
}

// PrintChecklist writes the report as a human-readable checklist and
// a one-line summary.
func (r *Report) PrintChecklist(w io.Writer) {
	for _, outcome := range r.Outcomes {
		prefix := strings.ToUpper(string(outcome.Status))
		fmt.Fprintf(w, "[%-7s]  %-40s  %s\n", prefix, outcome.Key, outcome.Message)
	}

	fmt.Fprintln(w)
	applied := resource.AppliedCount(r.Outcomes)
	planned, failed := 0, 0
	for _, outcome := range r.Outcomes {
		switch outcome.Status {
		case resource.StatusPlanned:
			planned++
		case resource.StatusFailed:
			failed++
		}
	}

	switch {
	case failed > 0:
		fmt.Fprintf(w, "Run failed at %s.\n", r.Outcomes[len(r.Outcomes)-1].Key)
	case r.DryRun && planned > 0:
		fmt.Fprintf(w, "%d resource(s) would be applied. Run without --dry-run to converge.\n", planned)
	case r.DryRun:
		fmt.Fprintln(w, "Host already converged; nothing to apply.")
	case applied > 0:
		fmt.Fprintf(w, "%d resource(s) applied.\n", applied)
	default:
		fmt.Fprintln(w, "Host already converged; nothing applied.")
	}
}
