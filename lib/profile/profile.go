// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile declares the target state a run converges the host
// toward: packages, services, managed configuration sections, and the
// intake directory tree. The profile is the only input to declaration
// building — current host state never feeds back into it.
//
// Profiles are YAML. An optional host-local overlay in JSONC (JSON
// with comments and trailing commas) is merged on top, so a fleet can
// share one profile while individual hosts override a field or two.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/steward-project/steward/lib/digest"
)

// Package declares one installable package and the binary that proves
// its presence.
type Package struct {
	// Name is the package-manager name.
	Name string `yaml:"name" json:"name"`

	// Binary is the executable the package provides; presence is
	// probed by resolving it, not by package-database membership.
	// Defaults to Name.
	Binary string `yaml:"binary" json:"binary"`
}

// Service declares one managed service.
type Service struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Exec is the launch command and arguments. Non-absolute commands
	// are resolved on the host's search path at declaration time.
	Exec []string `yaml:"exec" json:"exec"`

	// WorkingDir supports ~ expansion against the resolved identity.
	WorkingDir string `yaml:"working_dir" json:"working_dir"`

	// RestartSec is the on-failure restart delay in seconds.
	RestartSec int  `yaml:"restart_sec" json:"restart_sec"`
	Enabled    bool `yaml:"enabled" json:"enabled"`
}

// RestartDelay returns RestartSec as a duration.
func (s *Service) RestartDelay() time.Duration {
	return time.Duration(s.RestartSec) * time.Second
}

// Share declares one managed section of the shared-folder daemon's
// configuration file. Path supports ~ expansion; Options are copied
// into the section verbatim, one per line.
type Share struct {
	Tag     string   `yaml:"tag" json:"tag"`
	Path    string   `yaml:"path" json:"path"`
	Options []string `yaml:"options" json:"options"`
}

// PackageManager configures the package-manager collaborator.
type PackageManager struct {
	Binary      string `yaml:"binary" json:"binary"`
	InstallArgs []string `yaml:"install_args" json:"install_args"`
	RefreshArgs []string `yaml:"refresh_args" json:"refresh_args"`
}

// Profile is the declared target state.
type Profile struct {
	// DataRoot is the intake tree root; supports ~ expansion. The
	// original/, processed/ and meta/ subdirectories are created under
	// it, owned by the resolved identity.
	DataRoot string `yaml:"data_root" json:"data_root"`

	// AssetsDir is the backend's static web content. Preflight fails
	// when it is declared but missing — the tool installs services, it
	// does not fabricate their content.
	AssetsDir string `yaml:"assets_dir" json:"assets_dir"`

	// ExtraBinDirs extend the binary search path beyond PATH.
	ExtraBinDirs []string `yaml:"extra_bin_dirs" json:"extra_bin_dirs"`

	// ShareConfig is the shared-folder daemon's configuration file.
	ShareConfig string `yaml:"share_config" json:"share_config"`

	// RestartOnShareChange lists units to restart when ShareConfig's
	// content changed this run.
	RestartOnShareChange []string `yaml:"restart_on_share_change" json:"restart_on_share_change"`

	// JournalPath is the append-only run journal.
	JournalPath string `yaml:"journal_path" json:"journal_path"`

	PackageManager PackageManager `yaml:"package_manager" json:"package_manager"`
	Packages       []Package      `yaml:"packages" json:"packages"`
	Services       []Service      `yaml:"services" json:"services"`
	Shares         []Share        `yaml:"shares" json:"shares"`
}

// Default returns the stock profile: a web terminal, a file browser, a
// reverse proxy, the shared-folder daemon's intake and library shares,
// and the backend service.
func Default() *Profile {
	return &Profile{
		DataRoot:    "~/media",
		ShareConfig: "/etc/samba/smb.conf",
		JournalPath: "/var/log/steward/journal.cbor",
		ExtraBinDirs: []string{
			"/snap/bin",
		},
		RestartOnShareChange: []string{"smbd.service"},
		PackageManager: PackageManager{
			Binary:      "snap",
			InstallArgs: []string{"install"},
			RefreshArgs: []string{"refresh"},
		},
		Packages: []Package{
			{Name: "ttyd", Binary: "ttyd"},
			{Name: "filebrowser", Binary: "filebrowser"},
			{Name: "caddy", Binary: "caddy"},
		},
		Services: []Service{
			{
				Name:        "steward-terminal",
				Description: "Steward web terminal",
				Exec:        []string{"ttyd", "--port", "7681", "--writable", "bash"},
				WorkingDir:  "~",
				RestartSec:  5,
				Enabled:     true,
			},
			{
				Name:        "steward-files",
				Description: "Steward file browser",
				Exec:        []string{"filebrowser", "--port", "8080", "--root", "~/media"},
				WorkingDir:  "~",
				RestartSec:  5,
				Enabled:     true,
			},
			{
				Name:        "steward-proxy",
				Description: "Steward reverse proxy",
				Exec:        []string{"caddy", "run", "--config", "/etc/steward/Caddyfile"},
				WorkingDir:  "/etc/steward",
				RestartSec:  5,
				Enabled:     true,
			},
		},
		Shares: []Share{
			{
				Tag:  "intake",
				Path: "~/media/original",
				Options: []string{
					"read only = no",
					"browseable = yes",
				},
			},
			{
				Tag:  "library",
				Path: "~/media/processed",
				Options: []string{
					"read only = yes",
					"browseable = yes",
				},
			},
		},
	}
}

// LoadFile reads a YAML profile, fills defaults for omitted fields,
// and validates it.
func LoadFile(path string) (*Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	loaded := Default()
	if err := yaml.Unmarshal(content, loaded); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	loaded.fillDefaults()
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return loaded, nil
}

// ApplyOverlay merges a host-local JSONC overlay into the profile.
// Only fields present in the overlay are overwritten; comments and
// trailing commas are stripped before decoding.
func (p *Profile) ApplyOverlay(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read overlay: %w", err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(content), p); err != nil {
		return fmt.Errorf("parse overlay %s: %w", path, err)
	}
	p.fillDefaults()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("overlay %s: %w", path, err)
	}
	return nil
}

func (p *Profile) fillDefaults() {
	for i := range p.Packages {
		if p.Packages[i].Binary == "" {
			p.Packages[i].Binary = p.Packages[i].Name
		}
	}
}

// Validate rejects profiles that cannot produce a coherent declaration
// list. Validation failures abort before any probe or apply.
func (p *Profile) Validate() error {
	if p.DataRoot == "" {
		return fmt.Errorf("data_root must be set")
	}
	if p.ShareConfig == "" && len(p.Shares) > 0 {
		return fmt.Errorf("shares declared but share_config is empty")
	}
	if p.PackageManager.Binary == "" && len(p.Packages) > 0 {
		return fmt.Errorf("packages declared but package_manager.binary is empty")
	}

	for i, pkg := range p.Packages {
		if pkg.Name == "" {
			return fmt.Errorf("packages[%d]: name must be set", i)
		}
	}

	seenService := make(map[string]bool)
	for i, service := range p.Services {
		if service.Name == "" {
			return fmt.Errorf("services[%d]: name must be set", i)
		}
		if seenService[service.Name] {
			return fmt.Errorf("services[%d]: duplicate name %q", i, service.Name)
		}
		seenService[service.Name] = true
		if len(service.Exec) == 0 {
			return fmt.Errorf("service %s: exec must be set", service.Name)
		}
		if service.RestartSec < 0 {
			return fmt.Errorf("service %s: restart_sec must not be negative", service.Name)
		}
	}

	seenShare := make(map[string]bool)
	for i, share := range p.Shares {
		if share.Tag == "" {
			return fmt.Errorf("shares[%d]: tag must be set", i)
		}
		if seenShare[share.Tag] {
			return fmt.Errorf("shares[%d]: duplicate tag %q", i, share.Tag)
		}
		seenShare[share.Tag] = true
		if share.Path == "" {
			return fmt.Errorf("share %s: path must be set", share.Tag)
		}
	}
	return nil
}

// Digest returns the profile's content identity for journal records.
// The YAML rendering of the struct is deterministic (field order is
// fixed by the type), so equal profiles digest equally.
func (p *Profile) Digest() (digest.Digest, error) {
	canonical, err := yaml.Marshal(p)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("marshal profile: %w", err)
	}
	return digest.Profile(canonical), nil
}
