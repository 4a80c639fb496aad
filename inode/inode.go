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

// Package inode implements the tagged inode record described in spec.md
// §3: File, Directory, and Symlink variants sharing one POSIX-like
// Metadata, identified by the keyed hash of their canonical serialization.
//
// Grounded on umoci's oci/layer metadata handling (pkg/system covers the
// same mode/uid/gid/mtime fields this Metadata carries), adapted from
// umoci's tar-entry model to a hash-addressed DAG node since that's the
// shape store/rcdb.Value requires.
package inode

import (
	"encoding/json"

	"github.com/br-olf/backrub-go/crypto/hash"
)

// Kind tags which variant an Inode represents.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// Metadata is the POSIX-like metadata captured at walk time and never
// mutated once embedded in an inode (spec.md §3).
type Metadata struct {
	Mode uint32 `json:"mode"`
	UID  uint32 `json:"uid"`
	GID  uint32 `json:"gid"`

	MtimeSec  int64 `json:"mtime_sec"`
	MtimeNsec int64 `json:"mtime_nsec"`
	CtimeSec  int64 `json:"ctime_sec"`
	CtimeNsec int64 `json:"ctime_nsec"`
}

// Inode is the tagged variant record from spec.md §3. Only the fields
// relevant to Kind are meaningful; the others are zero. A single shared
// shape (rather than three separate Go types) keeps canonical
// serialization trivial: one json.Marshal of one struct layout.
type Inode struct {
	Kind     Kind     `json:"kind"`
	Path     []byte   `json:"path"`
	Metadata Metadata `json:"metadata"`

	// File-only.
	ChunkHashes []hash.Hash256 `json:"chunk_hashes"`
	FileHash    hash.Hash256   `json:"file_hash"`

	// Directory-only: hashes of child inodes, in walk order.
	Children []hash.Hash256 `json:"children"`

	// Symlink-only.
	LinkTarget []byte `json:"link_target"`
}

// NewFile constructs a File inode: path, the ordered chunk hashes emitted
// by the chunker, metadata, and the keyed hash of the file's full content.
func NewFile(path []byte, chunkHashes []hash.Hash256, meta Metadata, fileHash hash.Hash256) Inode {
	return Inode{
		Kind:        KindFile,
		Path:        path,
		Metadata:    meta,
		ChunkHashes: chunkHashes,
		FileHash:    fileHash,
	}
}

// NewDirectory constructs a Directory inode over its children's inode
// hashes, in walk order.
func NewDirectory(path []byte, meta Metadata, children []hash.Hash256) Inode {
	return Inode{
		Kind:     KindDirectory,
		Path:     path,
		Metadata: meta,
		Children: children,
	}
}

// NewSymlink constructs a Symlink inode.
func NewSymlink(path []byte, meta Metadata, target []byte) Inode {
	return Inode{
		Kind:       KindSymlink,
		Path:       path,
		Metadata:   meta,
		LinkTarget: target,
	}
}

// MarshalCanonical implements store/rcdb.Value: the canonical byte
// serialization an inode's identity hash is computed over.
func (i Inode) MarshalCanonical() ([]byte, error) {
	return json.Marshal(i)
}

// Decode deserializes the canonical representation produced by
// MarshalCanonical.
func Decode(b []byte) (Inode, error) {
	var i Inode
	if err := json.Unmarshal(b, &i); err != nil {
		return Inode{}, err
	}
	return i, nil
}

// Hash returns the inode's identity: the keyed hash of its canonical
// serialization under inodeHashKey.
func (i Inode) Hash(inodeHashKey hash.Key256) (hash.Hash256, error) {
	raw, err := i.MarshalCanonical()
	if err != nil {
		return hash.ZeroHash256, err
	}
	return hash.Keyed(inodeHashKey, raw), nil
}
