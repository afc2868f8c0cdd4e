// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package sysd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/steward-project/steward/lib/resource"
)

// Activator collects the run's service work and performs activation as
// one final step: a single definition reload (only when some
// definition changed), one batched enable-and-start, then any
// explicitly requested restarts. Batching keeps the sequencing in one
// place — individual resources only write definitions and record
// restart requests, they never call the supervisor's mutating
// operations directly.
//
// The full desired unit set is registered up front via Expect, before
// any definition work runs. Probing therefore always interrogates the
// supervisor about every expected unit, so a service disabled or
// stopped out of band is detected and repaired even on a run where no
// definition bytes change.
type Activator struct {
	Supervisor Supervisor
	Logger     *slog.Logger

	expected       []expectedUnit
	changed        bool
	restartPending map[string]bool
}

type expectedUnit struct {
	name    string
	enabled bool
}

// NewActivator returns an Activator driving the given supervisor.
func NewActivator(supervisor Supervisor, logger *slog.Logger) *Activator {
	return &Activator{
		Supervisor:     supervisor,
		Logger:         logger,
		restartPending: make(map[string]bool),
	}
}

// Expect registers a unit the run intends to manage and whether it
// should be enabled at boot. Called for every declared service when
// the plan is built, so probing covers the whole desired set
// regardless of which definitions get rewritten later.
func (a *Activator) Expect(unitName string, enabled bool) {
	a.expected = append(a.expected, expectedUnit{name: unitName, enabled: enabled})
}

// WriteDefinition renders and installs the spec's unit definition.
// Returns whether the on-disk definition changed.
func (a *Activator) WriteDefinition(spec ServiceSpec) (bool, error) {
	changed, err := a.Supervisor.WriteUnit(spec.UnitName(), spec.Render())
	if err != nil {
		return false, err
	}

	if changed {
		a.changed = true
		a.Logger.Info("service definition updated", "unit", spec.UnitName())
	}
	return changed, nil
}

// RequestRestart queues a restart for the named unit. Used when a
// service's configuration file was rewritten this run: reload does not
// notice config changes, so the running process must be restarted to
// pick them up. The unit need not be one of the expected units — a
// system-provided daemon whose config this run manages qualifies too.
func (a *Activator) RequestRestart(unitName string) {
	a.restartPending[unitName] = true
}

// Probe reports whether activation has anything left to do: no
// definition changed, no restart is pending, and every expected
// enabled unit is registered, enabled, and active. Read-only, so
// dry-run can plan the activation step accurately.
func (a *Activator) Probe(ctx context.Context) (resource.State, error) {
	if a.changed || len(a.restartPending) > 0 {
		return resource.StatePartiallyPresent, nil
	}

	for _, unit := range a.expected {
		if !unit.enabled {
			continue
		}

		registered, err := a.Supervisor.IsRegistered(ctx, unit.name)
		if err != nil {
			return resource.StateAbsent, err
		}
		if !registered {
			return resource.StateAbsent, nil
		}

		enabled, err := a.Supervisor.IsEnabled(ctx, unit.name)
		if err != nil {
			return resource.StateAbsent, err
		}
		active, err := a.Supervisor.IsActive(ctx, unit.name)
		if err != nil {
			return resource.StateAbsent, err
		}
		if !enabled || !active {
			return resource.StatePartiallyPresent, nil
		}
	}
	return resource.StateSatisfied, nil
}

// Activate performs the batched activation: reload once if any
// definition changed, enable and start every expected enabled unit
// that is not already enabled and active in one call, then run the
// pending restarts in one call. Fails fast — a reload failure aborts
// before enablement, an enablement failure before restarts.
func (a *Activator) Activate(ctx context.Context) error {
	if a.changed {
		a.Logger.Info("reloading service definitions")
		if err := a.Supervisor.ReloadDefinitions(ctx); err != nil {
			return fmt.Errorf("reload definitions: %w", err)
		}
	}

	var enable []string
	for _, unit := range a.expected {
		if !unit.enabled {
			continue
		}
		enabled, err := a.Supervisor.IsEnabled(ctx, unit.name)
		if err != nil {
			return fmt.Errorf("query enablement of %s: %w", unit.name, err)
		}
		active, err := a.Supervisor.IsActive(ctx, unit.name)
		if err != nil {
			return fmt.Errorf("query activity of %s: %w", unit.name, err)
		}
		if enabled && active {
			continue
		}
		enable = append(enable, unit.name)
	}
	if len(enable) > 0 {
		a.Logger.Info("enabling services", "units", enable)
		if err := a.Supervisor.EnableAndStart(ctx, enable); err != nil {
			return fmt.Errorf("enable services: %w", err)
		}
	}

	restart := make([]string, 0, len(a.restartPending))
	for name := range a.restartPending {
		restart = append(restart, name)
	}
	sort.Strings(restart)
	if len(restart) > 0 {
		a.Logger.Info("restarting services", "units", restart)
		if err := a.Supervisor.Restart(ctx, restart); err != nil {
			return fmt.Errorf("restart services: %w", err)
		}
	}

	a.changed = false
	a.restartPending = make(map[string]bool)
	return nil
}
