// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit without an extra error message:
// the command already wrote its own output (e.g. a failed checklist),
// and the non-zero code is the outcome, not an unexpected error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks returned errors for
// this interface to distinguish handled non-zero exits from errors
// that should be displayed.
func (e *ExitError) ExitCode() int {
	return e.Code
}
