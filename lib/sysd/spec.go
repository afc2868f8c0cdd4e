// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysd manages service definitions and activation through the
// host's service supervisor.
//
// Definitions are cheap to regenerate, so they are rendered in full on
// every run and overwritten when the bytes differ — no diffing against
// the previous definition is attempted, which sidesteps partial-edit
// bugs entirely. Activation is batched: after all definitions are
// written, the supervisor reloads its definition set once, then one
// enable-and-start call covers every enabled service, then explicitly
// requested restarts run. The supervisor does not detect configuration
// file changes on reload, so services whose config was rewritten this
// run must be restarted explicitly.
package sysd

import (
	"fmt"
	"strings"
	"time"
)

// ServiceSpec declares one managed service: what to run, as whom,
// where, and how to recover from failure.
type ServiceSpec struct {
	// Name is the unit base name (e.g. "steward-backend").
	Name string

	// Description is the human-readable unit description.
	Description string

	// ExecStart is the launch command followed by its arguments. The
	// command must be an absolute path (resolved from an earlier
	// package resource); the supervisor does not consult PATH.
	ExecStart []string

	// User is the account the service runs as — the resolved
	// unprivileged identity, never root.
	User string

	// WorkingDirectory is the service's working directory.
	WorkingDirectory string

	// RestartSec is the delay before an on-failure restart. Every
	// managed service restarts on failure; only the delay varies.
	RestartSec time.Duration

	// Enabled controls boot enablement. Disabled specs still get a
	// definition written so operators can start them manually.
	Enabled bool
}

// UnitName returns the full unit name.
func (s *ServiceSpec) UnitName() string {
	return s.Name + ".service"
}

// Render produces the complete unit definition. The output is the
// bit-exact contract with the supervisor: run-as identity, working
// directory, exact launch command, restart-on-failure policy with
// delay, and boot enablement via the install target.
func (s *ServiceSpec) Render() []byte {
	var builder strings.Builder

	builder.WriteString("[Unit]\n")
	fmt.Fprintf(&builder, "Description=%s\n", s.Description)
	builder.WriteString("After=network.target\n")
	builder.WriteString("\n")

	builder.WriteString("[Service]\n")
	fmt.Fprintf(&builder, "User=%s\n", s.User)
	if s.WorkingDirectory != "" {
		fmt.Fprintf(&builder, "WorkingDirectory=%s\n", s.WorkingDirectory)
	}
	fmt.Fprintf(&builder, "ExecStart=%s\n", renderExec(s.ExecStart))
	builder.WriteString("Restart=on-failure\n")
	fmt.Fprintf(&builder, "RestartSec=%d\n", int(s.RestartSec.Seconds()))
	builder.WriteString("\n")

	builder.WriteString("[Install]\n")
	builder.WriteString("WantedBy=multi-user.target\n")

	return []byte(builder.String())
}

// execEscaper escapes the characters with meaning inside a
// double-quoted supervisor argument.
var execEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// renderExec joins the launch command, quoting arguments that contain
// whitespace, quotes, or backslashes so the supervisor's word
// splitting reproduces the declared argument vector exactly.
func renderExec(exec []string) string {
	parts := make([]string, 0, len(exec))
	for _, argument := range exec {
		if strings.ContainsAny(argument, " \t\"\\") {
			parts = append(parts, `"`+execEscaper.Replace(argument)+`"`)
		} else {
			parts = append(parts, argument)
		}
	}
	return strings.Join(parts, " ")
}
