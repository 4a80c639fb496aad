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

package chunker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigHumanReadableSizes(t *testing.T) {
	cfg, err := ParseConfig("4KiB", "16KiB", "64KiB")
	require.NoError(t, err)
	require.Equal(t, Config{Min: 4 * 1024, Avg: 16 * 1024, Max: 64 * 1024}, cfg)
}

func TestParseConfigRejectsInvalidOrdering(t *testing.T) {
	_, err := ParseConfig("64KiB", "16KiB", "4KiB")
	require.Error(t, err)
}

func TestParseConfigRejectsGarbage(t *testing.T) {
	_, err := ParseConfig("not-a-size", "16KiB", "64KiB")
	require.Error(t, err)
}
