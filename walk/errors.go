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

package walk

import "strings"

// BackupRootMustBeDirError is returned by CreateBackup when root_path
// isn't a directory (spec.md §4.8).
type BackupRootMustBeDirError struct {
	Path string
}

func (e *BackupRootMustBeDirError) Error() string {
	return "walk: backup root must be a directory: " + e.Path
}

// FileError names the path a per-file walk failure occurred at, wrapping
// the underlying cause (spec.md §7's `Io(path, cause)`). Per-file errors
// are collected rather than aborting the backup (spec.md §4.8's default
// "collect-and-continue" policy).
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return "walk: " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error { return e.Err }

// Errors is the multi-error surfaced alongside a still-committed backup
// record when one or more files were skipped (spec.md §4.8: "A backup
// with ≥1 skipped file is still committed").
type Errors []*FileError

func (e Errors) Error() string {
	var sb strings.Builder
	sb.WriteString("walk: ")
	for i, fe := range e {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fe.Error())
	}
	return sb.String()
}
