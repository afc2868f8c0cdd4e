// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package pkgmgr

import (
	"context"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	codes := DefaultCodes()

	cases := []struct {
		code int
		want CodeClass
	}{
		{0, ClassSuccess},
		{10, ClassAlreadySatisfied},
		{1, ClassFailure},
		{104, ClassFailure},
	}
	for _, testCase := range cases {
		if got := codes.Classify(testCase.code); got != testCase.want {
			t.Errorf("Classify(%d) = %d, want %d", testCase.code, got, testCase.want)
		}
	}
}

// fakeRun installs a command runner returning a fixed exit code and
// stderr, and records invocations.
func fakeRun(t *testing.T, code int, stderr string) *[][]string {
	t.Helper()

	var calls [][]string
	original := runCommand
	t.Cleanup(func() { runCommand = original })

	runCommand = func(ctx context.Context, binary string, args []string) ([]byte, int, error) {
		calls = append(calls, append([]string{binary}, args...))
		return []byte(stderr), code, nil
	}
	return &calls
}

func TestInstallSuccess(t *testing.T) {
	calls := fakeRun(t, 0, "")
	manager := &Command{Binary: "snap", InstallArgs: []string{"install"}, Codes: DefaultCodes()}

	if err := manager.Install(context.Background(), []string{"ttyd", "filebrowser"}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(*calls))
	}
	got := strings.Join((*calls)[0], " ")
	if got != "snap install ttyd filebrowser" {
		t.Errorf("invocation = %q", got)
	}
}

func TestInstallAlreadySatisfiedIsSuccess(t *testing.T) {
	fakeRun(t, 10, `snap "ttyd" is already installed`)
	manager := &Command{Binary: "snap", InstallArgs: []string{"install"}, Codes: DefaultCodes()}

	if err := manager.Install(context.Background(), []string{"ttyd"}); err != nil {
		t.Errorf("already-installed exit code should be success-equivalent, got %v", err)
	}
}

func TestInstallFailureCarriesStderr(t *testing.T) {
	fakeRun(t, 1, "network unreachable")
	manager := &Command{Binary: "snap", InstallArgs: []string{"install"}, Codes: DefaultCodes()}

	err := manager.Install(context.Background(), []string{"ttyd"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "network unreachable") {
		t.Errorf("error %q does not carry stderr diagnostic", err)
	}
	if !strings.Contains(err.Error(), "exit 1") {
		t.Errorf("error %q does not carry exit code", err)
	}
}

func TestRefreshIndexOptional(t *testing.T) {
	calls := fakeRun(t, 0, "")
	manager := &Command{Binary: "snap", Codes: DefaultCodes()}

	if err := manager.RefreshIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 0 {
		t.Error("manager without refresh args should not invoke anything")
	}
}
