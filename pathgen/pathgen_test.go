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

package pathgen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodePathBoundary(t *testing.T) {
	require.Equal(t, "ff/ff/ff/ff/ff/ff/ff/ff.bin", EncodePath(math.MaxUint64))
	require.Equal(t, "1.bin", EncodePath(1))
	require.Equal(t, "ff.bin", EncodePath(0xff))
	require.Equal(t, "1/0.bin", EncodePath(0x100))
}

func TestNextProducesDistinctPaths(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p, err := g.Next()
		require.NoError(t, err)
		require.False(t, seen[p], "path %q reissued without release", p)
		seen[p] = true
	}
}

func TestReleaseRecyclesPath(t *testing.T) {
	g := New()

	p1, err := g.Next()
	require.NoError(t, err)
	p2, err := g.Next()
	require.NoError(t, err)
	_, err = g.Next()
	require.NoError(t, err)

	g.Release(p1)

	recycled, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, p1, recycled, "a freed path should be reissued before minting a new one")

	g.Release(p2)
	recycled2, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, p2, recycled2)
}

func TestNextExhausted(t *testing.T) {
	g := FromState(State{Counter: math.MaxUint64})

	_, err := g.Next()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestExhaustedGeneratorStillRecyclesFreedPaths(t *testing.T) {
	g := FromState(State{Counter: math.MaxUint64, Free: []string{"de/ad/be/ef.bin"}})

	p, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, "de/ad/be/ef.bin", p)

	_, err = g.Next()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestStateRoundTrip(t *testing.T) {
	g := New()
	_, _ = g.Next()
	_, _ = g.Next()
	p3, _ := g.Next()
	g.Release(p3)

	snap := g.State()
	restored := FromState(snap)
	require.Equal(t, snap, restored.State())
}
