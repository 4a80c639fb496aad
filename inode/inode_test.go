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

package inode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/br-olf/backrub-go/crypto/hash"
)

func testKey(t *testing.T) hash.Key256 {
	t.Helper()
	k, err := hash.NewKey256()
	require.NoError(t, err)
	return k
}

func TestFileRoundTrip(t *testing.T) {
	meta := Metadata{Mode: 0o644, UID: 1000, GID: 1000, MtimeSec: 1700000000}
	chunks := []hash.Hash256{{0x01}, {0x02}}
	fileHash := hash.Hash256{0xaa}

	in := NewFile([]byte("a/b/c.txt"), chunks, meta, fileHash)
	raw, err := in.MarshalCanonical()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestDirectoryRoundTrip(t *testing.T) {
	meta := Metadata{Mode: 0o755}
	children := []hash.Hash256{{0x03}, {0x04}, {0x05}}

	in := NewDirectory([]byte("a/b"), meta, children)
	raw, err := in.MarshalCanonical()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestSymlinkRoundTrip(t *testing.T) {
	meta := Metadata{Mode: 0o777}
	in := NewSymlink([]byte("a/link"), meta, []byte("../target"))

	raw, err := in.MarshalCanonical()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestEqualInodesHashIdentically(t *testing.T) {
	key := testKey(t)
	meta := Metadata{Mode: 0o644}
	chunks := []hash.Hash256{{0x01}}

	a := NewFile([]byte("x"), chunks, meta, hash.Hash256{0xff})
	b := NewFile([]byte("x"), chunks, meta, hash.Hash256{0xff})

	ha, err := a.Hash(key)
	require.NoError(t, err)
	hb, err := b.Hash(key)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestDifferentMetadataHashesDifferently(t *testing.T) {
	key := testKey(t)
	chunks := []hash.Hash256{{0x01}}

	a := NewFile([]byte("x"), chunks, Metadata{Mode: 0o644}, hash.Hash256{0xff})
	b := NewFile([]byte("x"), chunks, Metadata{Mode: 0o600}, hash.Hash256{0xff})

	ha, err := a.Hash(key)
	require.NoError(t, err)
	hb, err := b.Hash(key)
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}
