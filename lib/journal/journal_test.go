// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steward-project/steward/lib/digest"
	"github.com/steward-project/steward/lib/resource"
)

func testRecord(start int64) Record {
	profileDigest := digest.Profile([]byte("profile"))
	return NewRecord(time.Unix(start, 0), profileDigest, false, []resource.Outcome{
		{Key: "package:ttyd", Kind: resource.KindPackage, Status: resource.StatusApplied},
		{Key: "tree:intake", Kind: resource.KindDirectoryTree, Status: resource.StatusSkipped},
	})
}

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "journal.cbor")

	if err := Append(path, testRecord(1000)); err != nil {
		t.Fatal(err)
	}
	if err := Append(path, testRecord(2000)); err != nil {
		t.Fatal(err)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("read %d records, want 2", len(records))
	}
	if records[0].UnixTime != 1000 || records[1].UnixTime != 2000 {
		t.Errorf("record order: %d, %d", records[0].UnixTime, records[1].UnixTime)
	}
	if len(records[0].Outcomes) != 2 || records[0].Outcomes[0].Key != "package:ttyd" {
		t.Errorf("outcomes not round-tripped: %+v", records[0].Outcomes)
	}
}

func TestEncodingDeterministic(t *testing.T) {
	first, err := encMode.Marshal(testRecord(1000))
	if err != nil {
		t.Fatal(err)
	}
	second, err := encMode.Marshal(testRecord(1000))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("equal records encoded to different bytes")
	}
}

func TestRotateRoundTrip(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "journal.cbor")
	segmentPath := filepath.Join(directory, "journal.0001.seg")

	// Several records so zstd has something to compress.
	for i := int64(0); i < 20; i++ {
		if err := Append(path, testRecord(1000+i)); err != nil {
			t.Fatal(err)
		}
	}
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := RotateInto(path, segmentPath, CompressionZstd); err != nil {
		t.Fatal(err)
	}

	truncated, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if truncated.Size() != 0 {
		t.Errorf("journal not truncated after rotation: %d bytes", truncated.Size())
	}

	restored, err := ReadSegment(segmentPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, original) {
		t.Error("segment round trip lost data")
	}
}

func TestRotateIncompressibleFallsBackToNone(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "journal.cbor")
	segmentPath := filepath.Join(directory, "journal.seg")

	// A single tiny record does not compress.
	if err := Append(path, Record{UnixTime: 1}); err != nil {
		t.Fatal(err)
	}

	if err := RotateInto(path, segmentPath, CompressionLZ4); err != nil {
		t.Fatal(err)
	}

	segment, err := os.ReadFile(segmentPath)
	if err != nil {
		t.Fatal(err)
	}
	if CompressionTag(segment[0]) != CompressionNone {
		t.Errorf("tiny segment tag = %s, want none", CompressionTag(segment[0]))
	}
	if _, err := ReadSegment(segmentPath); err != nil {
		t.Errorf("ReadSegment: %v", err)
	}
}

func TestRotateEmptyJournalIsNoOp(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "journal.cbor")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	segmentPath := filepath.Join(directory, "journal.seg")

	if err := RotateInto(path, segmentPath, CompressionZstd); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(segmentPath); !os.IsNotExist(err) {
		t.Error("empty journal produced a segment")
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseCompressionTag(name)
		if err != nil {
			t.Errorf("ParseCompressionTag(%q): %v", name, err)
		}
		if tag.String() != name {
			t.Errorf("tag %q round-tripped to %q", name, tag.String())
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil || !strings.Contains(err.Error(), "gzip") {
		t.Errorf("unknown tag error = %v", err)
	}
}
