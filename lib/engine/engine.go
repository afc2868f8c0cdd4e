// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine runs convergence: probe every declared resource in
// order, skip the satisfied ones, apply the rest. The engine knows
// nothing about kinds — probing and applying are closures on the
// declarations — so its entire job is ordering, skip logic, dry-run,
// and fail-fast error wrapping.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steward-project/steward/lib/resource"
)

// Engine converges a declaration list against the host.
type Engine struct {
	Logger *slog.Logger

	// DryRun probes and reports without applying. Resources that
	// would be applied report StatusPlanned. Possible because probing
	// is side-effect-free.
	DryRun bool
}

// Validate rejects declaration lists the engine must not attempt:
// duplicate keys, and Requires references to keys declared later or
// not at all. Reversed dependency order is a declaration bug, and it
// fails deterministically before any probe runs.
func Validate(resources []resource.Resource) error {
	declared := make(map[string]bool, len(resources))
	for i := range resources {
		key := resources[i].Key
		if key == "" {
			return fmt.Errorf("resource %d: empty key", i)
		}
		if declared[key] {
			return fmt.Errorf("resource %s: duplicate key", key)
		}
		for _, required := range resources[i].Requires {
			if !declared[required] {
				return fmt.Errorf("resource %s: requires %q, which is not declared earlier", key, required)
			}
		}
		declared[key] = true
	}
	return nil
}

// Converge processes resources strictly in declaration order,
// single-threaded. Satisfied resources are skipped; the rest are
// applied (or planned, in dry-run). The first failure aborts the run —
// the returned outcomes cover everything up to and including the
// failed resource, and the error is an *resource.ApplyError.
//
// Re-running Converge over an already-converged host yields zero
// applied outcomes and no observable host change.
func (e *Engine) Converge(ctx context.Context, resources []resource.Resource) ([]resource.Outcome, error) {
	if err := Validate(resources); err != nil {
		return nil, err
	}

	outcomes := make([]resource.Outcome, 0, len(resources))
	for i := range resources {
		declaration := &resources[i]
		logger := e.Logger.With("key", declaration.Key, "kind", declaration.Kind)

		state, err := declaration.Probe(ctx)
		if err != nil {
			outcomes = append(outcomes, resource.Outcome{
				Key:     declaration.Key,
				Kind:    declaration.Kind,
				Status:  resource.StatusFailed,
				Message: err.Error(),
			})
			return outcomes, &resource.ApplyError{Key: declaration.Key, Stage: "probe", Err: err}
		}

		if state == resource.StateSatisfied {
			logger.Debug("satisfied, skipping")
			outcomes = append(outcomes, resource.Outcome{
				Key:    declaration.Key,
				Kind:   declaration.Kind,
				Status: resource.StatusSkipped,
			})
			continue
		}

		if e.DryRun {
			logger.Info("would apply", "state", state)
			outcomes = append(outcomes, resource.Outcome{
				Key:     declaration.Key,
				Kind:    declaration.Kind,
				Status:  resource.StatusPlanned,
				Message: fmt.Sprintf("currently %s", state),
			})
			continue
		}

		logger.Info("applying", "state", state)
		if err := declaration.Apply(ctx); err != nil {
			outcomes = append(outcomes, resource.Outcome{
				Key:     declaration.Key,
				Kind:    declaration.Kind,
				Status:  resource.StatusFailed,
				Message: err.Error(),
			})
			return outcomes, &resource.ApplyError{Key: declaration.Key, Stage: "apply", Err: err}
		}

		outcomes = append(outcomes, resource.Outcome{
			Key:    declaration.Key,
			Kind:   declaration.Kind,
			Status: resource.StatusApplied,
		})
	}
	return outcomes, nil
}
