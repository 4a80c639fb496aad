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

package manifest

import "github.com/pkg/errors"

// ErrInvalidSignature is returned by OpenRepository when the manifest's
// signature does not verify under the key derived from the supplied
// password (spec.md §7).
var ErrInvalidSignature = errors.New("manifest: invalid signature")

// DbAlreadyExistsError is returned by CreateRepository when a manifest or
// database already exists at path.
type DbAlreadyExistsError struct {
	Path string
}

func (e *DbAlreadyExistsError) Error() string {
	return "manifest: already exists: " + e.Path
}

// DbDidNotExistError is returned by OpenRepository when the manifest or
// database does not exist at path.
type DbDidNotExistError struct {
	Path string
}

func (e *DbDidNotExistError) Error() string {
	return "manifest: did not exist: " + e.Path
}

// RepositoryLockedError is returned by CreateRepository/OpenRepository
// when another process already holds the repository's advisory lock
// (spec.md §5's single-writer requirement extended across processes, not
// just goroutines within one).
type RepositoryLockedError struct {
	Path string
}

func (e *RepositoryLockedError) Error() string {
	return "manifest: repository already locked by another process: " + e.Path
}
