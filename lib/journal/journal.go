// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records run outcomes in an append-only audit log.
// The journal is write-only from the engine's perspective: convergence
// decisions never read it, because the host itself is the only source
// of current-state truth. Records exist for operators and CI.
//
// Records are CBOR in Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. The same run data always produces identical bytes, so journal
// diffs are meaningful.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/steward-project/steward/lib/digest"
	"github.com/steward-project/steward/lib/resource"
)

// Record is one run's journal entry.
type Record struct {
	// UnixTime is the run's start time, seconds since epoch.
	UnixTime int64 `cbor:"1,keyasint"`

	// ProfileDigest identifies the profile content the run converged
	// toward.
	ProfileDigest string `cbor:"2,keyasint"`

	// DryRun marks records produced without mutating the host.
	DryRun bool `cbor:"3,keyasint"`

	// Outcomes are the per-resource results in declaration order.
	Outcomes []resource.Outcome `cbor:"4,keyasint"`
}

// NewRecord builds a record for the current run.
func NewRecord(start time.Time, profileDigest digest.Digest, dryRun bool, outcomes []resource.Outcome) Record {
	return Record{
		UnixTime:      start.Unix(),
		ProfileDigest: profileDigest.String(),
		DryRun:        dryRun,
		Outcomes:      outcomes,
	}
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
}

// Append encodes the record and appends it to the journal file,
// creating the file and its directory as needed. Appends are
// whole-record writes on an O_APPEND descriptor.
func Append(path string, record Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("journal directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	encoded, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode journal record: %w", err)
	}
	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return file.Sync()
}

// ReadAll decodes every record in a journal file, oldest first.
func ReadAll(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var records []Record
	decoder := cbor.NewDecoder(file)
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return nil, fmt.Errorf("decode journal record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
}
