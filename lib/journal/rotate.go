// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the algorithm a rotated segment was
// compressed with. The tag is the segment header's first byte —
// changing these values breaks existing segments.
type CompressionTag uint8

const (
	// CompressionNone stores the segment uncompressed. Also the
	// fallback when compression would not shrink the data.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. Journal records
	// are repetitive text-like data, so this is the usual choice.
	CompressionZstd CompressionTag = 2
)

// String returns the tag's human-readable name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a tag name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// segmentHeaderSize is 1 tag byte plus 8 bytes of uncompressed size.
const segmentHeaderSize = 9

// zstd encoder/decoder are reused across calls; both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("journal: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("journal: zstd decoder initialization failed: " + err.Error())
	}
}

// RotateInto compresses the journal at path into a segment file and
// truncates the journal. If the requested algorithm does not shrink
// the data, the segment is stored uncompressed under CompressionNone.
// An empty journal rotates to nothing and is left in place.
func RotateInto(path, segmentPath string, tag CompressionTag) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	payload, used, err := compress(data, tag)
	if err != nil {
		return fmt.Errorf("compress journal: %w", err)
	}

	segment := make([]byte, segmentHeaderSize, segmentHeaderSize+len(payload))
	segment[0] = byte(used)
	binary.BigEndian.PutUint64(segment[1:9], uint64(len(data)))
	segment = append(segment, payload...)

	if err := os.WriteFile(segmentPath, segment, 0644); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	return nil
}

// ReadSegment decompresses a rotated segment back into raw journal
// bytes (a CBOR record stream, decodable with ReadAll's decoder).
func ReadSegment(segmentPath string) ([]byte, error) {
	segment, err := os.ReadFile(segmentPath)
	if err != nil {
		return nil, fmt.Errorf("read segment: %w", err)
	}
	if len(segment) < segmentHeaderSize {
		return nil, fmt.Errorf("segment %s: truncated header", segmentPath)
	}

	tag := CompressionTag(segment[0])
	size := binary.BigEndian.Uint64(segment[1:9])
	payload := segment[segmentHeaderSize:]

	data, err := decompress(payload, tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", segmentPath, err)
	}
	return data, nil
}

func compress(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return data, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func decompress(payload []byte, tag CompressionTag, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(payload) != size {
			return nil, fmt.Errorf("uncompressed segment: size %d does not match header %d", len(payload), size)
		}
		return payload, nil

	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil

	case CompressionZstd:
		destination, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(destination) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(destination), size)
		}
		return destination, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
