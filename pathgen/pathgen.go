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

// Package pathgen implements the stateful generator that assigns short,
// collision-free relative file paths to new physical chunk objects and
// recycles paths freed by deletion, per spec.md §4.3.
//
// This is pure counter/free-list bookkeeping with no natural third-party
// library in the retrieval pack (it isn't a UUID scheme, a hash-based
// sharding scheme, or anything any example repo implements) — math/bits and
// sync are sufficient and nothing in the pack does this job better, so it
// stays on the standard library.
package pathgen

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
	"sync"
)

// ErrExhausted is returned once the counter has reached math.MaxUint64 and
// the free list is empty. At repository scale this is practically
// unreachable (spec.md §4.3).
var ErrExhausted = errors.New("pathgen: exhausted")

// State is the persisted snapshot embedded in the manifest
// (`chunk_db_state` in spec.md §6): the monotonic counter and the list of
// paths freed by deletion but not yet reissued.
type State struct {
	Counter uint64   `json:"counter"`
	Free    []string `json:"free"`
}

// Generator is the PathGen described in spec.md §4.3. It is safe for
// concurrent use, though per spec.md §5 only the owning ChunkDB's single
// committer should ever call Next/Release.
type Generator struct {
	mu      sync.Mutex
	counter uint64
	free    []string
}

// New creates a fresh Generator with no history.
func New() *Generator {
	return &Generator{}
}

// FromState restores a Generator from a persisted snapshot.
func FromState(s State) *Generator {
	return &Generator{
		counter: s.Counter,
		free:    append([]string(nil), s.Free...),
	}
}

// State returns a snapshot of the generator's current counter and free
// list, suitable for embedding in the manifest on commit.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Counter: g.counter,
		Free:    append([]string(nil), g.free...),
	}
}

// Next returns the next available relative path: a recycled one if the
// free list is nonempty, otherwise a freshly minted one derived from the
// incremented counter. Returns ErrExhausted if the counter has saturated
// math.MaxUint64 and nothing is free.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n := len(g.free); n > 0 {
		p := g.free[n-1]
		g.free = g.free[:n-1]
		return p, nil
	}

	if g.counter == math.MaxUint64 {
		return "", ErrExhausted
	}
	g.counter++
	return EncodePath(g.counter), nil
}

// Release returns path to the free list, making it the next value Next
// will hand out (absent a more recently released path). Callers must only
// release a path once per removal, and only a path this generator actually
// issued.
func (g *Generator) Release(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.free = append(g.free, path)
}

// EncodePath renders counter as a relative path of hex-named directory
// components, one per byte of counter's minimal big-endian representation,
// terminated by a ".bin" file. E.g. counter 0xff_ff_ff_ff_ff_ff_ff_ff
// encodes to "ff/ff/ff/ff/ff/ff/ff/ff.bin". Each byte is emitted with no
// zero padding (fmt's "%x" on a single byte), capping directory fan-out at
// 256 and directory depth at ⌈log₂(counter)/8⌉ (spec.md §4.3).
func EncodePath(counter uint64) string {
	n := (bits.Len64(counter) + 7) / 8
	if n == 0 {
		n = 1
	}

	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(counter)
		counter >>= 8
	}

	var sb strings.Builder
	for i, by := range b {
		if i == len(b)-1 {
			fmt.Fprintf(&sb, "%x.bin", by)
		} else {
			fmt.Fprintf(&sb, "%x/", by)
		}
	}
	return sb.String()
}
