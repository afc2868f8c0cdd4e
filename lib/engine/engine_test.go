// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/steward-project/steward/lib/resource"
)

func testEngine() *Engine {
	return &Engine{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// declaration builds a resource backed by a mutable satisfied flag:
// probing reads it, applying sets it.
func declaration(key string, satisfied *bool, applied *[]string) resource.Resource {
	return resource.Resource{
		Kind: resource.KindPackage,
		Key:  key,
		Probe: func(ctx context.Context) (resource.State, error) {
			if *satisfied {
				return resource.StateSatisfied, nil
			}
			return resource.StateAbsent, nil
		},
		Apply: func(ctx context.Context) error {
			*satisfied = true
			*applied = append(*applied, key)
			return nil
		},
	}
}

func TestConvergeAppliesUnsatisfiedInOrder(t *testing.T) {
	var applied []string
	firstDone, secondDone, thirdDone := false, true, false
	resources := []resource.Resource{
		declaration("a", &firstDone, &applied),
		declaration("b", &secondDone, &applied),
		declaration("c", &thirdDone, &applied),
	}

	outcomes, err := testEngine().Converge(context.Background(), resources)
	if err != nil {
		t.Fatal(err)
	}

	if strings.Join(applied, ",") != "a,c" {
		t.Errorf("applied %v, want [a c]", applied)
	}
	wantStatus := []resource.Status{resource.StatusApplied, resource.StatusSkipped, resource.StatusApplied}
	for i, outcome := range outcomes {
		if outcome.Status != wantStatus[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, outcome.Status, wantStatus[i])
		}
	}
}

func TestConvergeSecondRunAppliesNothing(t *testing.T) {
	var applied []string
	firstDone, secondDone := false, false
	resources := []resource.Resource{
		declaration("a", &firstDone, &applied),
		declaration("b", &secondDone, &applied),
	}
	engine := testEngine()
	ctx := context.Background()

	if _, err := engine.Converge(ctx, resources); err != nil {
		t.Fatal(err)
	}
	outcomes, err := engine.Converge(ctx, resources)
	if err != nil {
		t.Fatal(err)
	}

	if count := resource.AppliedCount(outcomes); count != 0 {
		t.Errorf("second converge applied %d resources, want 0", count)
	}
	if len(applied) != 2 {
		t.Errorf("total applies = %d, want 2", len(applied))
	}
}

func TestConvergeDryRunMutatesNothing(t *testing.T) {
	var applied []string
	done := false
	resources := []resource.Resource{declaration("a", &done, &applied)}

	engine := testEngine()
	engine.DryRun = true
	outcomes, err := engine.Converge(context.Background(), resources)
	if err != nil {
		t.Fatal(err)
	}

	if len(applied) != 0 {
		t.Errorf("dry run applied %v", applied)
	}
	if outcomes[0].Status != resource.StatusPlanned {
		t.Errorf("dry-run status = %s, want planned", outcomes[0].Status)
	}
}

func TestConvergeFailFast(t *testing.T) {
	var applied []string
	okDone, laterDone := false, false
	failing := resource.Resource{
		Kind:  resource.KindConfigFile,
		Key:   "broken",
		Probe: func(ctx context.Context) (resource.State, error) { return resource.StateAbsent, nil },
		Apply: func(ctx context.Context) error { return fmt.Errorf("disk full") },
	}
	resources := []resource.Resource{
		declaration("ok", &okDone, &applied),
		failing,
		declaration("later", &laterDone, &applied),
	}

	outcomes, err := testEngine().Converge(context.Background(), resources)
	if err == nil {
		t.Fatal("expected failure")
	}

	var applyError *resource.ApplyError
	if !errors.As(err, &applyError) {
		t.Fatalf("error type %T, want *resource.ApplyError", err)
	}
	if applyError.Key != "broken" || applyError.Stage != "apply" {
		t.Errorf("ApplyError = %+v", applyError)
	}
	if laterDone {
		t.Error("resource after the failure was applied")
	}
	if len(outcomes) != 2 || outcomes[1].Status != resource.StatusFailed {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestValidateRejectsForwardRequires(t *testing.T) {
	noop := func(ctx context.Context) (resource.State, error) { return resource.StateSatisfied, nil }
	resources := []resource.Resource{
		{Key: "unit/backend", Requires: []string{"package/ttyd"}, Probe: noop},
		{Key: "package/ttyd", Probe: noop},
	}

	err := Validate(resources)
	if err == nil {
		t.Fatal("forward requirement accepted")
	}
	if !strings.Contains(err.Error(), "package/ttyd") {
		t.Errorf("error %q does not name the missing key", err)
	}
}

func TestValidateRejectsDuplicateKeys(t *testing.T) {
	noop := func(ctx context.Context) (resource.State, error) { return resource.StateSatisfied, nil }
	resources := []resource.Resource{
		{Key: "package/ttyd", Probe: noop},
		{Key: "package/ttyd", Probe: noop},
	}
	if err := Validate(resources); err == nil {
		t.Error("duplicate key accepted")
	}
}
