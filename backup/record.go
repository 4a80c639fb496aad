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

// Package backup defines the Backup record (spec.md §3): the named,
// timestamped pointer to a root inode hash that the backup engine
// (package walk) produces and the restore engine (package restore) and
// lister (api.go) consume. It's a leaf package so both sides of the
// backup/restore split can depend on it without depending on each other.
package backup

import (
	"encoding/json"
	"time"

	"github.com/br-olf/backrub-go/crypto/hash"
)

// Record is the Backup record described in spec.md §3: a timestamp, a
// caller-supplied name, and the hash of the root Directory inode it
// captures. Stored in an RCDB keyed by its own keyed hash.
type Record struct {
	Timestamp string       `json:"timestamp"`
	Name      string       `json:"name"`
	RootInode hash.Hash256 `json:"root_inode"`
}

// timestampLayout is RFC 3339 UTC with microsecond precision, the format
// resolved for Backup.timestamp (spec.md §9 left the exact format an open
// question).
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// New constructs a Record with at formatted per timestampLayout. Callers
// pass the commit-time clock reading, not a per-file walk timestamp, so
// every inode in one backup shares wall-clock-irrelevant identity and
// only the Record itself is timestamped.
func New(name string, rootInode hash.Hash256, at time.Time) Record {
	return Record{
		Timestamp: at.UTC().Format(timestampLayout),
		Name:      name,
		RootInode: rootInode,
	}
}

// MarshalCanonical implements store/rcdb.Value.
func (r Record) MarshalCanonical() ([]byte, error) {
	return json.Marshal(r)
}

// Decode deserializes the canonical representation produced by
// MarshalCanonical.
func Decode(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Time parses r.Timestamp back into a time.Time, the inverse of New's
// formatting step.
func (r Record) Time() (time.Time, error) {
	return time.Parse(timestampLayout, r.Timestamp)
}
