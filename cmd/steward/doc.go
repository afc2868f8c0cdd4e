// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Command steward reconciles a single host against a declared profile.
//
//	sudo steward apply              converge the host
//	sudo steward apply --dry-run    preview without mutating
//	steward status                  unprivileged state report
package main
