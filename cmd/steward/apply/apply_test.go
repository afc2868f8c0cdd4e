// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"reflect"
	"testing"

	"github.com/steward-project/steward/lib/identity"
	"github.com/steward-project/steward/lib/profile"
)

func TestSweepRoots(t *testing.T) {
	resolved := &identity.Identity{Username: "alice", Home: "/home/alice"}

	cases := []struct {
		name     string
		dataRoot string
		want     []string
	}{
		{"data root under home", "~/media", []string{"/home/alice"}},
		{"data root is home", "~", []string{"/home/alice"}},
		{"data root elsewhere", "/mnt/big/media", []string{"/home/alice", "/mnt/big/media"}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			declared := &profile.Profile{DataRoot: testCase.dataRoot}
			got := sweepRoots(resolved, declared)
			if !reflect.DeepEqual(got, testCase.want) {
				t.Errorf("sweepRoots = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestLoadProfileStockAndOverlay(t *testing.T) {
	loaded, err := loadProfile(&params{})
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Packages) == 0 || len(loaded.Services) == 0 {
		t.Error("stock profile should declare packages and services")
	}
}
