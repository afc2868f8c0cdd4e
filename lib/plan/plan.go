// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan turns a profile and a resolved identity into the run's
// declaration list. Declarations are built fresh every run in a fixed
// pipeline order — packages, directory trees, managed sections, unit
// definitions, activation — and each one captures its collaborators in
// probe/apply closures, so the engine stays kind-agnostic.
package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steward-project/steward/lib/digest"
	"github.com/steward-project/steward/lib/identity"
	"github.com/steward-project/steward/lib/pkgmgr"
	"github.com/steward-project/steward/lib/probe"
	"github.com/steward-project/steward/lib/profile"
	"github.com/steward-project/steward/lib/resource"
	"github.com/steward-project/steward/lib/sections"
	"github.com/steward-project/steward/lib/sysd"
)

// ActivationKey is the final declaration's key: the batched service
// activation step every unit definition feeds into.
const ActivationKey = "services/activation"

// Inputs are the collaborators the declarations close over.
type Inputs struct {
	Profile   *profile.Profile
	Identity  *identity.Identity
	Host      probe.Host
	Installer pkgmgr.Installer
	Activator *sysd.Activator

	// UnitDir is where unit definitions live, for probing. Defaults
	// to the supervisor's standard directory.
	UnitDir string
}

func (in *Inputs) unitDir() string {
	if in.UnitDir != "" {
		return in.UnitDir
	}
	return sysd.DefaultUnitDir
}

// Build produces the run's declaration list in pipeline order.
func Build(in Inputs) ([]resource.Resource, error) {
	var resources []resource.Resource

	resources = append(resources, packageResources(in)...)
	resources = append(resources, treeResource(in))
	if len(in.Profile.Shares) > 0 {
		resources = append(resources, sharesResource(in))
	}

	// Register the full expected service set before any definition
	// work, so activation probing covers services whose definitions
	// are already converged — enablement drift stays visible on runs
	// that write nothing.
	for i := range in.Profile.Services {
		service := &in.Profile.Services[i]
		spec := sysd.ServiceSpec{Name: service.Name}
		in.Activator.Expect(spec.UnitName(), service.Enabled)
	}

	unitKeys := make([]string, 0, len(in.Profile.Services))
	for i := range in.Profile.Services {
		declaration, err := unitResource(in, &in.Profile.Services[i])
		if err != nil {
			return nil, err
		}
		resources = append(resources, declaration)
		unitKeys = append(unitKeys, declaration.Key)
	}

	resources = append(resources, activationResource(in, unitKeys))
	return resources, nil
}

// packageResources declares one resource per package. The index is
// refreshed at most once per run, lazily before the first install —
// a run where every package probe is satisfied never refreshes.
func packageResources(in Inputs) []resource.Resource {
	refreshed := false
	refreshOnce := func(ctx context.Context) error {
		if refreshed {
			return nil
		}
		if err := in.Installer.RefreshIndex(ctx); err != nil {
			return fmt.Errorf("refresh package index: %w", err)
		}
		refreshed = true
		return nil
	}

	declarations := make([]resource.Resource, 0, len(in.Profile.Packages))
	for _, pkg := range in.Profile.Packages {
		pkg := pkg
		declarations = append(declarations, resource.Resource{
			Kind: resource.KindPackage,
			Key:  "package/" + pkg.Name,
			Probe: func(ctx context.Context) (resource.State, error) {
				return probe.Binary(in.Host, pkg.Binary)
			},
			Apply: func(ctx context.Context) error {
				if err := refreshOnce(ctx); err != nil {
					return err
				}
				return in.Installer.Install(ctx, []string{pkg.Name})
			},
		})
	}
	return declarations
}

// intakeSubdirs is the fixed intake tree layout under the data root.
var intakeSubdirs = []string{"original", "processed", "meta"}

// treeResource declares the intake directory tree, owned by the
// resolved identity — never by root, even though the run itself is
// privileged.
func treeResource(in Inputs) resource.Resource {
	root := in.Identity.Path(in.Profile.DataRoot)

	paths := make([]string, 0, 1+len(intakeSubdirs))
	paths = append(paths, root)
	for _, subdir := range intakeSubdirs {
		paths = append(paths, filepath.Join(root, subdir))
	}

	return resource.Resource{
		Kind: resource.KindDirectoryTree,
		Key:  "tree/" + root,
		Probe: func(ctx context.Context) (resource.State, error) {
			present := 0
			for _, path := range paths {
				state, err := probe.Directory(in.Host, path)
				if err != nil {
					return resource.StateAbsent, err
				}
				if state != resource.StateSatisfied {
					continue
				}
				owner, err := in.Host.OwnerUID(path)
				if err != nil {
					return resource.StateAbsent, err
				}
				if owner != in.Identity.UID {
					return resource.StatePartiallyPresent, nil
				}
				present++
			}
			switch present {
			case len(paths):
				return resource.StateSatisfied, nil
			case 0:
				return resource.StateAbsent, nil
			default:
				return resource.StatePartiallyPresent, nil
			}
		},
		Apply: func(ctx context.Context) error {
			for _, path := range paths {
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
			}
			return in.Identity.OwnTree(root)
		},
	}
}

// sharesResource declares the managed sections of the shared-folder
// daemon's configuration file. Content changes request a restart of
// the daemon — definition reload does not re-read its config.
func sharesResource(in Inputs) resource.Resource {
	configPath := in.Profile.ShareConfig
	desired := desiredSections(in.Profile, in.Identity)
	tags := make([]string, 0, len(desired))
	for _, section := range desired {
		tags = append(tags, section.Tag)
	}

	return resource.Resource{
		Kind: resource.KindTextBlockSet,
		Key:  "sections/" + configPath,
		Probe: func(ctx context.Context) (resource.State, error) {
			content, err := in.Host.ReadFile(configPath)
			if err != nil {
				if os.IsNotExist(err) {
					return resource.StateAbsent, nil
				}
				return resource.StateAbsent, fmt.Errorf("read %s: %w", configPath, err)
			}
			if digest.File(sections.Apply(content, tags, desired)) == digest.File(content) {
				return resource.StateSatisfied, nil
			}
			return resource.StatePartiallyPresent, nil
		},
		Apply: func(ctx context.Context) error {
			changed, err := sections.ApplyFile(configPath, tags, desired)
			if err != nil {
				return err
			}
			if changed {
				for _, unit := range in.Profile.RestartOnShareChange {
					in.Activator.RequestRestart(unit)
				}
			}
			return nil
		},
	}
}

// desiredSections renders the profile's shares as config sections.
// The share path and access identity come from the resolved identity,
// so the same profile converges correctly for any invoking user.
func desiredSections(declared *profile.Profile, id *identity.Identity) []sections.Section {
	rendered := make([]sections.Section, 0, len(declared.Shares))
	for _, share := range declared.Shares {
		lines := []string{
			"   path = " + id.Path(share.Path),
			"   valid users = " + id.Username,
		}
		for _, option := range share.Options {
			lines = append(lines, "   "+option)
		}
		rendered = append(rendered, sections.Section{Tag: share.Tag, Lines: lines})
	}
	return rendered
}

// unitResource declares one service's unit definition. The launch
// command resolves through the host's search path at apply time, after
// the providing package is installed; the rendered definition always
// carries an absolute path.
func unitResource(in Inputs, service *profile.Service) (resource.Resource, error) {
	if len(service.Exec) == 0 {
		return resource.Resource{}, fmt.Errorf("service %s: empty exec", service.Name)
	}

	var requires []string
	for _, pkg := range in.Profile.Packages {
		if pkg.Binary == service.Exec[0] {
			requires = append(requires, "package/"+pkg.Name)
		}
	}

	render := func() ([]byte, string, error) {
		spec, err := serviceSpec(in, service)
		if err != nil {
			return nil, "", err
		}
		return spec.Render(), spec.UnitName(), nil
	}

	return resource.Resource{
		Kind:     resource.KindServiceUnit,
		Key:      "unit/" + service.Name,
		Requires: requires,
		Probe: func(ctx context.Context) (resource.State, error) {
			desired, unitName, err := render()
			if err != nil {
				// Launch binary not yet resolvable: the definition
				// cannot exist in its converged form.
				return resource.StateAbsent, nil
			}
			existing, err := in.Host.ReadFile(filepath.Join(in.unitDir(), unitName))
			if err != nil {
				if os.IsNotExist(err) {
					return resource.StateAbsent, nil
				}
				return resource.StateAbsent, fmt.Errorf("read unit %s: %w", unitName, err)
			}
			if digest.Unit(existing) == digest.Unit(desired) {
				return resource.StateSatisfied, nil
			}
			return resource.StatePartiallyPresent, nil
		},
		Apply: func(ctx context.Context) error {
			spec, err := serviceSpec(in, service)
			if err != nil {
				return err
			}
			_, err = in.Activator.WriteDefinition(*spec)
			return err
		},
	}, nil
}

// serviceSpec builds the supervisor spec for a service: command
// resolved to an absolute path, ~ arguments and working directory
// expanded against the identity.
func serviceSpec(in Inputs, service *profile.Service) (*sysd.ServiceSpec, error) {
	command := service.Exec[0]
	if !filepath.IsAbs(command) {
		resolved, err := in.Host.LookPath(command)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", service.Name, err)
		}
		command = resolved
	}

	exec := make([]string, 0, len(service.Exec))
	exec = append(exec, command)
	for _, argument := range service.Exec[1:] {
		if strings.HasPrefix(argument, "~") {
			argument = in.Identity.Path(argument)
		}
		exec = append(exec, argument)
	}

	workingDir := service.WorkingDir
	if workingDir != "" {
		workingDir = in.Identity.Path(workingDir)
	}

	return &sysd.ServiceSpec{
		Name:             service.Name,
		Description:      service.Description,
		ExecStart:        exec,
		User:             in.Identity.Username,
		WorkingDirectory: workingDir,
		RestartSec:       service.RestartDelay(),
		Enabled:          service.Enabled,
	}, nil
}

// activationResource is the final declaration: one reload, one batched
// enable-and-start, then the restarts requested by config changes.
func activationResource(in Inputs, unitKeys []string) resource.Resource {
	return resource.Resource{
		Kind:     resource.KindServiceUnit,
		Key:      ActivationKey,
		Requires: unitKeys,
		Probe:    in.Activator.Probe,
		Apply:    in.Activator.Activate,
	}
}
