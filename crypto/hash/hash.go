// SPDX-License-Identifier: Apache-2.0
/*
 * backrub: content-addressed, deduplicating, encrypted backup engine
 * Copyright (C) 2016-2025 SUSE LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package hash implements the fixed-width byte values and keyed hashing
// discipline used throughout the repository as content identifiers.
//
// Grounded on the teacher's (opencontainers/umoci) use of a single opaque
// digest type threaded through its CAS layer (oci/cas/blob.go), but unlike
// umoci's algorithm-prefixed go-digest strings, our identifiers are
// fixed-width 32-byte PRF outputs keyed by a repository secret, so the type
// is a plain byte array rather than a parsed string. Keyed hashing uses
// lukechampine.com/blake3, a pack-attested dependency (see
// SubstantialCattle5-Sietch in the retrieval pack).
package hash

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the byte length of a Hash256 or Key256.
const Size = 32

// NonceSize is the byte length of a Nonce192.
const NonceSize = 24

// Hash256 is an opaque 256-bit content identifier: the keyed hash of some
// canonical byte serialization. It carries no semantics beyond its size and
// origin; equality is byte-wise and ordering is lexicographic over the byte
// representation (used by RCDB.iter to yield ascending key order).
type Hash256 [Size]byte

// Key256 is an opaque 256-bit secret: a data key, a KEK, or the signature
// key.
type Key256 [Size]byte

// Nonce192 is the 192-bit nonce consumed by the envelope's AEAD.
type Nonce192 [NonceSize]byte

// ZeroHash256 is the Hash256 of no bytes set; it is never a valid content
// identifier and is useful as a sentinel.
var ZeroHash256 Hash256

// Hash256FromBytes converts a byte slice to a Hash256, failing if the
// length isn't exactly Size bytes.
func Hash256FromBytes(b []byte) (Hash256, error) {
	var h Hash256
	if len(b) != Size {
		return h, fmt.Errorf("hash256: expected %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Key256FromBytes converts a byte slice to a Key256, failing if the length
// isn't exactly Size bytes.
func Key256FromBytes(b []byte) (Key256, error) {
	var k Key256
	if len(b) != Size {
		return k, fmt.Errorf("key256: expected %d bytes, got %d", Size, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Nonce192FromBytes converts a byte slice to a Nonce192, failing if the
// length isn't exactly NonceSize bytes.
func Nonce192FromBytes(b []byte) (Nonce192, error) {
	var n Nonce192
	if len(b) != NonceSize {
		return n, fmt.Errorf("nonce192: expected %d bytes, got %d", NonceSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// Bytes returns the raw byte slice backing the hash.
func (h Hash256) Bytes() []byte { return h[:] }

// Bytes returns the raw byte slice backing the key.
func (k Key256) Bytes() []byte { return k[:] }

// Bytes returns the raw byte slice backing the nonce.
func (n Nonce192) Bytes() []byte { return n[:] }

// String renders the hash as lowercase hex, e.g. for logging.
func (h Hash256) String() string { return hex.EncodeToString(h[:]) }

// String renders the key as lowercase hex. Never call this on a real key
// outside of tests; it exists so Key256 satisfies fmt.Stringer for debug
// builds.
func (k Key256) String() string { return hex.EncodeToString(k[:]) }

// Equal reports whether two hashes are byte-identical. Comparison time
// depends on where the first differing byte falls; do not use this to
// check an attacker-influenced value against a secret-derived one (see
// ConstantTimeEqual).
func (h Hash256) Equal(o Hash256) bool { return h == o }

// ConstantTimeEqual reports whether two hashes are byte-identical, taking
// time independent of where h and o first differ. Use this instead of
// Equal whenever one side is a MAC or signature being verified against an
// attacker-controlled document, so a timing side channel can't leak how
// many leading bytes already matched.
func (h Hash256) ConstantTimeEqual(o Hash256) bool {
	return subtle.ConstantTimeCompare(h[:], o[:]) == 1
}

// Less reports whether h sorts before o under lexicographic byte order.
func (h Hash256) Less(o Hash256) bool { return bytes.Compare(h[:], o[:]) < 0 }

// IsZero reports whether h is the all-zero sentinel.
func (h Hash256) IsZero() bool { return h == ZeroHash256 }

// MarshalJSON renders h as a hex string, the wire form used wherever a
// Hash256 is embedded in a JSON document (inode/backup records, the
// manifest).
func (h Hash256) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses the hex string form produced by MarshalJSON.
func (h *Hash256) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("hash256: decode hex: %w", err)
	}
	parsed, err := Hash256FromBytes(raw)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalJSON renders k as a hex string.
func (k Key256) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses the hex string form produced by MarshalJSON.
func (k *Key256) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("key256: decode hex: %w", err)
	}
	parsed, err := Key256FromBytes(raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// NewKey256 generates a fresh random 256-bit key from the system CSPRNG.
func NewKey256() (Key256, error) {
	var k Key256
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("generate key256: %w", err)
	}
	return k, nil
}

// NewNonce192 generates a fresh random 192-bit nonce from the system CSPRNG.
// Random nonces are safe at repository scale: with a 192-bit space, a
// realistic collision needs on the order of 2^80 encryptions under the
// same key (spec.md §4.1).
func NewNonce192() (Nonce192, error) {
	var n Nonce192
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("generate nonce192: %w", err)
	}
	return n, nil
}

// Keyed computes the 256-bit keyed hash of data under key. This is the PRF
// used for chunk hashes, inode hashes, file hashes, and manifest
// signatures — the key determines which "namespace" the hash belongs to.
func Keyed(key Key256, data []byte) Hash256 {
	h := blake3.New(Size, key[:])
	h.Write(data)
	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}

// KeyedHasher is an incremental keyed hasher: bytes can be streamed in via
// Write as they become available (e.g. while a chunk is produced by the
// chunker) rather than requiring the whole input up front.
type KeyedHasher struct {
	h *blake3.Hasher
}

// NewKeyedHasher creates a KeyedHasher bound to key.
func NewKeyedHasher(key Key256) *KeyedHasher {
	return &KeyedHasher{h: blake3.New(Size, key[:])}
}

// Write implements io.Writer. It never returns an error.
func (k *KeyedHasher) Write(p []byte) (int, error) {
	return k.h.Write(p)
}

// Sum returns the Hash256 of everything written so far, without resetting
// the hasher's state.
func (k *KeyedHasher) Sum() Hash256 {
	var out Hash256
	copy(out[:], k.h.Sum(nil))
	return out
}
