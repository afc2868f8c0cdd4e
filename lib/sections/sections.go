// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sections performs idempotent surgical edits to section-based
// text configuration files (the INI-style format where a line matching
// ^[Name]$ opens a section that runs until the next header or EOF).
//
// The editor owns a whitelist of managed section tags. Applying a set
// of desired sections removes every live instance of a managed tag —
// including duplicates left behind by earlier buggy runs — preserves
// all other content byte-for-byte in its original order, and appends
// the desired sections. Because the appended tags are themselves
// managed, the transformation is a fixed point: applying it to its own
// output yields identical bytes.
//
// Rather than pattern-matching lines in place, the file is parsed into
// an explicit sequence of tagged regions and re-serialized. This keeps
// the idempotence property structural instead of incidental.
package sections

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/steward-project/steward/lib/atomicfile"
)

// BackupSuffix is appended to a managed file's path to form its
// pristine backup sibling (e.g. /etc/samba/smb.conf.orig). The backup
// is captured the first time the file is touched and never recreated
// or modified afterwards.
const BackupSuffix = ".orig"

// headerPattern matches a section header line. No close token exists;
// a section runs until the next header or EOF.
var headerPattern = regexp.MustCompile(`^\[([^\[\]]+)\]$`)

// Section is one desired managed section: a tag and its content lines
// (excluding the header line, which is regenerated from the tag).
type Section struct {
	Tag   string
	Lines []string
}

// Region is one parsed region of an existing file: the raw lines of a
// section, header included. Lines keep their newline terminators (the
// file's final line may be unterminated), so serialization reproduces
// the input byte-for-byte. The preamble before the first header has
// tag "" and no header line.
type Region struct {
	Tag   string
	Lines []string
}

// Parse splits file content into an ordered sequence of regions. A
// line matching the header pattern opens a new region tagged with the
// section name; it remains current until the next header line.
func Parse(content []byte) []Region {
	if len(content) == 0 {
		return nil
	}

	lines := splitLines(content)

	var regions []Region
	current := Region{Tag: ""}

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(strings.TrimSuffix(line, "\n")); match != nil {
			if len(current.Lines) > 0 {
				regions = append(regions, current)
			}
			current = Region{Tag: match[1]}
		}
		current.Lines = append(current.Lines, line)
	}
	regions = append(regions, current)

	return regions
}

// Serialize joins regions back into file content. Lines carry their
// own terminators, so Serialize(Parse(content)) == content for any
// input — a trailing newline is neither added nor dropped.
func Serialize(regions []Region) []byte {
	var builder strings.Builder
	for _, region := range regions {
		for _, line := range region.Lines {
			builder.WriteString(line)
		}
	}
	return []byte(builder.String())
}

// Apply removes every region whose tag is managed, preserves all other
// regions in their original order, and appends the desired sections.
// The desired sections' own tags are implicitly managed, which is what
// makes the transformation a fixed point.
func Apply(content []byte, managedTags []string, desired []Section) []byte {
	managed := make(map[string]bool, len(managedTags)+len(desired))
	for _, tag := range managedTags {
		managed[tag] = true
	}
	for _, section := range desired {
		managed[section.Tag] = true
	}

	var kept []Region
	for _, region := range Parse(content) {
		if region.Tag != "" && managed[region.Tag] {
			continue
		}
		kept = append(kept, region)
	}

	// Preserved content that ends without a newline must gain one
	// before sections are appended below it. With nothing to append,
	// the original terminator state passes through untouched.
	if len(desired) > 0 && len(kept) > 0 {
		last := kept[len(kept)-1]
		if lastLine := last.Lines[len(last.Lines)-1]; !strings.HasSuffix(lastLine, "\n") {
			last.Lines[len(last.Lines)-1] = lastLine + "\n"
		}
	}

	for _, section := range desired {
		region := Region{Tag: section.Tag}
		region.Lines = append(region.Lines, "["+section.Tag+"]\n")
		for _, line := range section.Lines {
			region.Lines = append(region.Lines, line+"\n")
		}
		kept = append(kept, region)
	}

	return Serialize(kept)
}

// LiveTags returns how many live regions carry each managed tag.
// The probe uses this to distinguish a converged file (exactly one
// region per tag, matching content) from one with stale duplicates.
func LiveTags(content []byte, managedTags []string) map[string]int {
	managed := make(map[string]bool, len(managedTags))
	for _, tag := range managedTags {
		managed[tag] = true
	}

	counts := make(map[string]int)
	for _, region := range Parse(content) {
		if managed[region.Tag] {
			counts[region.Tag]++
		}
	}
	return counts
}

// ApplyFile performs one read-modify-write cycle against path:
// capture the pristine backup if this is the first touch, apply the
// desired sections, and write the result back atomically. A file
// already at the fixed point is left untouched (no write, no new
// timestamps). Returns whether the file content changed.
//
// A missing target is treated as empty — the file is created and no
// backup is taken, since there is no original to protect.
func ApplyFile(path string, managedTags []string, desired []Section) (bool, error) {
	original, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	if exists {
		if err := EnsureBackup(path, original); err != nil {
			return false, err
		}
	}

	updated := Apply(original, managedTags, desired)
	if exists && string(updated) == string(original) {
		return false, nil
	}

	mode := os.FileMode(0644)
	if exists {
		if info, statErr := os.Stat(path); statErr == nil {
			mode = info.Mode().Perm()
		}
	}

	if err := atomicfile.WriteFile(path, updated, mode); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureBackup captures the pristine sibling backup of path if one
// does not already exist. An existing backup is never recreated or
// modified, protecting the original content permanently — even across
// runs that modify the target further.
func EnsureBackup(path string, content []byte) error {
	backupPath := path + BackupSuffix
	if _, err := os.Stat(backupPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking backup %s: %w", backupPath, err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := atomicfile.WriteFile(backupPath, content, mode); err != nil {
		return fmt.Errorf("capturing backup %s: %w", backupPath, err)
	}
	return nil
}

// splitLines splits content into lines, each keeping its newline
// terminator. Content ending in a newline produces no trailing empty
// element; a final unterminated line is returned as-is.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(content), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
