// Copyright 2026 The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes BLAKE3 content digests with domain
// separation. The engine compares desired content against on-disk
// content by digest (unit files, managed configuration) and records
// content identity in the run journal.
//
// Domain separation ensures the same bytes produce different digests
// in different contexts, so a unit file and a config file with
// identical content never compare equal across domains.
package digest

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The byte values
// are the ASCII encoding of the domain name, zero-padded to 32 bytes:
// readable in hex dumps, opaque to the hash.
type domainKey [32]byte

// Fixed domain keys. Changing them invalidates every digest recorded
// in existing journals.
var (
	fileDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.', 'f', 'i', 'l', 'e',
	}

	unitDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.', 'u', 'n', 'i', 't',
	}

	profileDomainKey = domainKey{
		's', 't', 'e', 'w', 'a', 'r', 'd', '.', 'p', 'r', 'o', 'f', 'i', 'l', 'e',
	}
)

// File computes the file-domain digest of configuration file content.
func File(data []byte) Digest {
	return keyedHash(fileDomainKey, data)
}

// Unit computes the unit-domain digest of a rendered service
// definition.
func Unit(data []byte) Digest {
	return keyedHash(unitDomainKey, data)
}

// Profile computes the profile-domain digest of the serialized desired
// state, recorded in journal entries so a run can be correlated with
// the profile that produced it.
func Profile(data []byte) Digest {
	return keyedHash(profileDomainKey, data)
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func keyedHash(key domainKey, data []byte) Digest {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed fails only on a wrong key length, which the
		// domainKey type rules out.
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)

	var result Digest
	copy(result[:], hasher.Sum(nil))
	return result
}
