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

// Package chunker implements FastCDC content-defined chunking over a
// memory-mapped file, per spec.md §4.4.
//
// There's no FastCDC implementation anywhere in the retrieval pack — the
// closest textures are pbtrung/duplicacy's chunk.go (buffer handling around
// a rolling hash) and gitrgoliveira/vault-file-encryption's streaming
// envelope wrapping — so the cut-point algorithm itself is implemented
// directly from spec.md's description (two-stage mask test against a
// rolling gear-sum, normalized around the average chunk size) rather than
// ported from an example. The teacher's direct use of golang.org/x/sys for
// low-level filesystem primitives (pkg/system) is followed for the
// memory-mapped read path.
package chunker

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/br-olf/backrub-go/crypto/hash"
)

// Config bounds the chunk sizes FastCDC will produce. Field names match
// the manifest's `chunker_conf` document (spec.md §6).
type Config struct {
	Min uint64 `json:"minimum_chunk_size"`
	Avg uint64 `json:"average_chunk_size"`
	Max uint64 `json:"maximum_chunk_size"`
}

// ErrInvalidConfig is returned when a Config violates 0 < Min ≤ Avg ≤ Max.
var ErrInvalidConfig = errors.New("chunker: invalid config")

// DefaultConfig returns the chunk size bounds used when a caller doesn't
// have an opinion: 512KiB average, bounded to a 4x window around it, the
// same shape duplicacy and restic settle on for general-purpose backup
// workloads.
func DefaultConfig() Config {
	return Config{
		Min: 256 * 1024,
		Avg: 512 * 1024,
		Max: 2048 * 1024,
	}
}

// Validate checks 0 < Min ≤ Avg ≤ Max (spec.md §6).
func (c Config) Validate() error {
	if c.Min == 0 || c.Min > c.Avg || c.Avg > c.Max {
		return errors.Wrapf(ErrInvalidConfig, "min=%d avg=%d max=%d", c.Min, c.Avg, c.Max)
	}
	return nil
}

// normalizedMasks derives the two FastCDC bitmasks from the average chunk
// size: a stricter mask (more bits) used while scanning below the average,
// and a looser one (fewer bits) used above it, biasing cut points to
// cluster near avg (the standard FastCDC "normalized chunking" trick).
func (c Config) normalizedMasks() (maskSmall, maskLarge uint64) {
	b := bits.Len64(c.Avg)
	if b < 2 {
		b = 2
	}
	maskSmall = (uint64(1) << (b + 1)) - 1
	maskLarge = (uint64(1) << (b - 1)) - 1
	return
}

// cutPoint finds the length of the next chunk to emit from the front of
// data, per the FastCDC two-stage mask test described in spec.md §4.4.
func cutPoint(data []byte, cfg Config) int {
	n := uint64(len(data))
	if n <= cfg.Min {
		return int(n)
	}

	max := cfg.Max
	if n < max {
		max = n
	}
	avg := cfg.Avg
	if avg > max {
		avg = max
	}

	maskSmall, maskLarge := cfg.normalizedMasks()

	var rollingHash uint64
	i := cfg.Min
	for ; i < avg; i++ {
		rollingHash = (rollingHash << 1) + gearTable[data[i]&0x3f]
		if rollingHash&maskSmall == 0 {
			return int(i + 1)
		}
	}
	for ; i < max; i++ {
		rollingHash = (rollingHash << 1) + gearTable[data[i]&0x3f]
		if rollingHash&maskLarge == 0 {
			return int(i + 1)
		}
	}
	return int(max)
}

// Chunk is one contiguous, non-overlapping byte span emitted by a Chunker.
// Data aliases the Chunker's underlying buffer; callers that retain a
// Chunk past the buffer's lifetime must copy it.
type Chunk struct {
	Offset uint64
	Data   []byte
}

// Chunker is a lazy, pull-based FastCDC cut-point iterator over an
// in-memory byte slice (typically a memory-mapped file, see MappedFile).
type Chunker struct {
	data   []byte
	cfg    Config
	offset uint64
}

// New constructs a Chunker over data using cfg, validating cfg first.
func New(data []byte, cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{data: data, cfg: cfg}, nil
}

// Next returns the next chunk in input order, or ok == false once the
// input is exhausted. Chunks are emitted in strict order and their
// concatenation reconstructs the original input exactly.
func (c *Chunker) Next() (chunk Chunk, ok bool) {
	if c.offset >= uint64(len(c.data)) {
		return Chunk{}, false
	}
	remaining := c.data[c.offset:]
	n := cutPoint(remaining, c.cfg)
	chunk = Chunk{Offset: c.offset, Data: remaining[:n]}
	c.offset += uint64(n)
	return chunk, true
}

// HashedChunk pairs a chunk's bytes with its keyed content hash.
type HashedChunk struct {
	Hash hash.Hash256
	Data []byte
}

// ChunkAndHash splits data into chunks under cfg, computing each chunk's
// keyed hash under chunkKey and the keyed hash of the whole input under
// fileKey alongside the chunking pass itself (spec.md §4.4: "these two
// hash computations must produce the same values as if performed
// independently").
func ChunkAndHash(data []byte, cfg Config, chunkKey, fileKey hash.Key256) ([]HashedChunk, hash.Hash256, error) {
	c, err := New(data, cfg)
	if err != nil {
		return nil, hash.ZeroHash256, err
	}

	fileHasher := hash.NewKeyedHasher(fileKey)
	var chunks []HashedChunk
	for {
		chunk, ok := c.Next()
		if !ok {
			break
		}
		fileHasher.Write(chunk.Data)
		chunks = append(chunks, HashedChunk{
			Hash: hash.Keyed(chunkKey, chunk.Data),
			Data: chunk.Data,
		})
	}
	return chunks, fileHasher.Sum(), nil
}
