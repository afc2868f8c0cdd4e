// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource defines the data model shared by the convergence
// engine and the resource appliers: managed resource declarations,
// probe states, per-resource outcomes, and the run-level error
// taxonomy.
//
// A ManagedResource is declared fresh at the start of every run and is
// never persisted between runs. The live host is the only source of
// truth for current state — probing re-derives it each time.
package resource

import (
	"context"
	"fmt"
)

// Kind classifies a managed resource. The kind determines which
// applier the engine dispatches to when the resource is not satisfied.
type Kind string

const (
	// KindPackage is an installable package, probed by binary
	// resolvability rather than package-database membership.
	KindPackage Kind = "package"

	// KindConfigFile is a whole generated configuration file.
	KindConfigFile Kind = "config-file"

	// KindServiceUnit is a service definition written to the
	// supervisor's unit directory.
	KindServiceUnit Kind = "service-unit"

	// KindDirectoryTree is a directory hierarchy created if absent
	// and owned by the resolved identity.
	KindDirectoryTree Kind = "directory-tree"

	// KindTextBlockSet is a set of managed sections inside a shared,
	// section-based configuration file.
	KindTextBlockSet Kind = "text-block-set"
)

// State is the result of probing a resource's current condition on the
// host. Probing never mutates anything.
type State string

const (
	// StateSatisfied means the host already matches the desired state;
	// the engine skips the resource.
	StateSatisfied State = "satisfied"

	// StateAbsent means the resource does not exist on the host at all.
	StateAbsent State = "absent"

	// StatePartiallyPresent means the resource exists but does not
	// match the desired state (wrong content, wrong ownership, stale
	// sections). The applier must converge it; appliers are idempotent
	// so partial presence needs no special handling.
	StatePartiallyPresent State = "partially-present"
)

// Status is the per-resource outcome of a convergence run.
type Status string

const (
	// StatusSkipped means the probe found the resource already
	// satisfied and no action was taken.
	StatusSkipped Status = "skipped"

	// StatusApplied means the applier ran and converged the resource.
	StatusApplied Status = "applied"

	// StatusFailed means the applier (or a probe) returned an error.
	// A failed resource aborts the rest of the run.
	StatusFailed Status = "failed"

	// StatusPlanned means the resource would be applied, reported in
	// dry-run mode instead of StatusApplied.
	StatusPlanned Status = "planned"
)

// Resource is one declared unit of desired state. Declarations are
// built in a fixed pipeline order; the engine processes them strictly
// in declaration order.
//
// Probe and Apply are closures that capture their collaborators
// (host, installer, supervisor, section editor) at declaration time,
// so the engine itself stays free of kind-specific knowledge.
type Resource struct {
	// Kind classifies the resource for reporting and journaling.
	Kind Kind

	// Key uniquely identifies the resource within a run
	// (e.g. "package/ttyd", "unit/steward-backend").
	Key string

	// Requires lists keys of resources this one depends on. Every
	// required key must be declared earlier in the list; the engine
	// rejects the whole declaration set otherwise.
	Requires []string

	// Probe reports the resource's current state without mutating
	// anything. A probe error is fatal to the run.
	Probe func(ctx context.Context) (State, error)

	// Apply converges the resource. It must be idempotent: applying
	// an already-converged resource is a no-op. Returning an error
	// fails the run unless the error is classified as already
	// satisfied by the collaborator's code map.
	Apply func(ctx context.Context) error
}

// Outcome records what happened to one resource during a run.
type Outcome struct {
	Key     string `json:"key"               cbor:"1,keyasint"`
	Kind    Kind   `json:"kind"              cbor:"2,keyasint"`
	Status  Status `json:"status"            cbor:"3,keyasint"`
	Message string `json:"message,omitempty" cbor:"4,keyasint,omitempty"`
}

// AppliedCount returns the number of outcomes with StatusApplied.
// A second converge over an already-converged host must report zero.
func AppliedCount(outcomes []Outcome) int {
	count := 0
	for _, outcome := range outcomes {
		if outcome.Status == StatusApplied {
			count++
		}
	}
	return count
}

// PreflightError reports a condition that makes the run impossible
// before any resource is touched: missing privilege, unsupported
// platform, or a missing static asset. Preflight failures take no
// partial action — the process exits immediately.
type PreflightError struct {
	// Check names the failed precondition (e.g. "root privilege",
	// "service supervisor", "static assets").
	Check string

	// Reason explains the failure in operator terms.
	Reason string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s: %s", e.Check, e.Reason)
}

// ApplyError reports an applier failure. It carries enough context
// (resource key and stage) to diagnose which resource and which stage
// of the pipeline failed. There are no automatic retries: the recovery
// path is to fix the underlying cause and re-invoke convergence, which
// skips everything already satisfied.
type ApplyError struct {
	// Key is the failing resource's identity key.
	Key string

	// Stage names the pipeline stage ("probe", "apply", "activate").
	Stage string

	// Err is the underlying failure.
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Stage, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
