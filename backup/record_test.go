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

package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/br-olf/backrub-go/crypto/hash"
)

func TestNewFormatsTimestampAsRFC3339UTCWithMicroseconds(t *testing.T) {
	at := time.Date(2026, 7, 31, 12, 0, 0, 123000000, time.FixedZone("CEST", 2*60*60))
	r := New("nightly", hash.Hash256{0x01}, at)

	require.Equal(t, "2026-07-31T10:00:00.123000Z", r.Timestamp)
}

func TestRecordRoundTrip(t *testing.T) {
	r := New("weekly", hash.Hash256{0xde, 0xad}, time.Now())

	raw, err := r.MarshalCanonical()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, r, got)
}
