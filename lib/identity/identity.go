// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the unprivileged account a privileged
// convergence run acts on behalf of, and repairs file ownership that
// privileged execution leaves behind.
//
// Resolution happens exactly once at run start; every other component
// receives the Identity as a read-only value. Nothing in this package
// (or anywhere else) mutates the ambient process environment to
// impersonate the account — ownership is always assigned explicitly.
package identity

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Identity is the resolved unprivileged account. Managed data
// directories and generated services run as this account, never as the
// privileged invoking identity.
type Identity struct {
	// Username is the account name (e.g. the SUDO_USER value).
	Username string

	// UID and GID are the account's numeric IDs.
	UID int
	GID int

	// Home is the account's home directory from the account database.
	Home string
}

// IdentityError reports that no usable unprivileged identity could be
// resolved. Callers treat it as fatal to the whole run: every managed
// path derives from the identity, so there is nothing useful to do
// without one. There are no retries — resolution is a single
// deterministic lookup.
type IdentityError struct {
	Reason string
	Err    error
}

func (e *IdentityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving identity: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("resolving identity: %s", e.Reason)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// Test override hooks. Variables rather than direct calls so tests can
// substitute account-database and environment lookups.
var (
	lookupUser  = user.Lookup
	currentUser = user.Current
	getenv      = os.Getenv
	statPath    = os.Stat
)

// Resolve determines the unprivileged account for this run.
//
// Under sudo, the invoking user is taken from SUDO_USER. Otherwise the
// current user is used, provided it is not root — a root shell with no
// sudo metadata has no resolvable non-privileged owner. The resolved
// account must have a home directory recorded in the account database,
// and that directory must exist on disk.
func Resolve() (*Identity, error) {
	var account *user.User

	if sudoUser := getenv("SUDO_USER"); sudoUser != "" {
		resolved, err := lookupUser(sudoUser)
		if err != nil {
			return nil, &IdentityError{Reason: fmt.Sprintf("SUDO_USER %q not in account database", sudoUser), Err: err}
		}
		account = resolved
	} else {
		resolved, err := currentUser()
		if err != nil {
			return nil, &IdentityError{Reason: "no SUDO_USER and current-user lookup failed", Err: err}
		}
		if resolved.Uid == "0" {
			return nil, &IdentityError{Reason: "running as root with no SUDO_USER; no unprivileged owner to act for"}
		}
		account = resolved
	}

	uid, err := strconv.Atoi(account.Uid)
	if err != nil {
		return nil, &IdentityError{Reason: fmt.Sprintf("parsing uid %q", account.Uid), Err: err}
	}
	gid, err := strconv.Atoi(account.Gid)
	if err != nil {
		return nil, &IdentityError{Reason: fmt.Sprintf("parsing gid %q", account.Gid), Err: err}
	}

	if account.HomeDir == "" {
		return nil, &IdentityError{Reason: fmt.Sprintf("account %q has no home directory in the account database", account.Username)}
	}
	info, err := statPath(account.HomeDir)
	if err != nil {
		return nil, &IdentityError{Reason: fmt.Sprintf("home directory %s", account.HomeDir), Err: err}
	}
	if !info.IsDir() {
		return nil, &IdentityError{Reason: fmt.Sprintf("home directory %s is not a directory", account.HomeDir)}
	}

	return &Identity{
		Username: account.Username,
		UID:      uid,
		GID:      gid,
		Home:     account.HomeDir,
	}, nil
}

// Path resolves a profile path against the identity's home directory.
// A "~/" prefix expands to the home directory; absolute paths pass
// through unchanged; anything else is joined under home.
func (id *Identity) Path(p string) string {
	switch {
	case p == "~":
		return id.Home
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(id.Home, p[2:])
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(id.Home, p)
	}
}

// OwnTree walks root and assigns every entry to the identity, without
// following symlinks. This is the end-of-run sweep that repairs files
// a privileged process left owned by root inside the identity's home
// or data tree. File modes are left as-is: individual files may carry
// intentionally restrictive permissions.
func (id *Identity) OwnTree(root string) error {
	var chownErrors []string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			chownErrors = append(chownErrors, fmt.Sprintf("%s: %v", path, err))
			return nil // keep walking
		}
		if chownErr := unix.Lchown(path, id.UID, id.GID); chownErr != nil {
			chownErrors = append(chownErrors, fmt.Sprintf("chown %s: %v", path, chownErr))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	if len(chownErrors) > 0 {
		return fmt.Errorf("ownership sweep of %s: %s", root, strings.Join(chownErrors, "; "))
	}
	return nil
}
