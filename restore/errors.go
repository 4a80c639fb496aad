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

package restore

import (
	"strings"

	"github.com/br-olf/backrub-go/crypto/hash"
)

// BackupNotFoundError is returned by Restore when backupID isn't present
// in the repository's backup store (spec.md §4.9 step 1).
type BackupNotFoundError struct {
	ID hash.Hash256
}

func (e *BackupNotFoundError) Error() string {
	return "restore: backup not found: " + e.ID.String()
}

// MissingInodeError reports an inode hash referenced by a Directory's
// children or a Backup's root pointer that isn't present in the inode
// store — a corrupted or truncated repository.
type MissingInodeError struct {
	Hash hash.Hash256
}

func (e *MissingInodeError) Error() string {
	return "restore: missing inode: " + e.Hash.String()
}

// ChunkNotFoundError reports a chunk hash referenced by a File inode that
// isn't present in the chunk store (spec.md §4.9 step 3).
type ChunkNotFoundError struct {
	Path string
	Hash hash.Hash256
}

func (e *ChunkNotFoundError) Error() string {
	return "restore: " + e.Path + ": missing chunk " + e.Hash.String()
}

// FileError names the destination path a per-entry restore failure
// occurred at, wrapping the underlying cause. Per-file errors are
// collected rather than aborting the restore (spec.md §4.9 step 3's
// "restore of the remaining tree continues"), mirroring the backup
// engine's collect-and-continue policy.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return "restore: " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error { return e.Err }

// Errors is the multi-error surfaced when one or more entries failed to
// restore.
type Errors []*FileError

func (e Errors) Error() string {
	var sb strings.Builder
	sb.WriteString("restore: ")
	for i, fe := range e {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fe.Error())
	}
	return sb.String()
}
