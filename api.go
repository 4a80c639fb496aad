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

// Package backrub provides the top-level Go API for backrub functionality
// (spec.md §6): opening or creating a repository, running a backup,
// listing the backups it holds, and restoring one back to disk. Note
// that, as with the teacher's own top-level API, this surface is not yet
// considered stable.
package backrub

import (
	"context"
	"time"

	"github.com/br-olf/backrub-go/backup"
	"github.com/br-olf/backrub-go/chunker"
	"github.com/br-olf/backrub-go/crypto/hash"
	"github.com/br-olf/backrub-go/manifest"
	"github.com/br-olf/backrub-go/restore"
	"github.com/br-olf/backrub-go/store/rcdb"
	"github.com/br-olf/backrub-go/walk"
)

// Repository is a handle on an open backrub repository. All methods are
// thin wiring over the manifest/walk/restore packages; no business logic
// lives here.
type Repository struct {
	repo *manifest.Repository
}

// CreateRepository initializes a new, empty repository at repoDir,
// deriving its key hierarchy from password via the Argon2Config/Config
// spec.md §4.7 describes. It fails if a repository already exists there.
func CreateRepository(repoDir string, password []byte, chunkerConf chunker.Config, argonConf manifest.Argon2Config) (*Repository, error) {
	r, err := manifest.CreateRepository(repoDir, password, chunkerConf, argonConf)
	if err != nil {
		return nil, err
	}
	return &Repository{repo: r}, nil
}

// OpenRepository opens an existing repository at repoDir, deriving its
// key hierarchy from password and verifying the manifest's signature
// before trusting anything else on disk.
func OpenRepository(repoDir string, password []byte) (*Repository, error) {
	r, err := manifest.OpenRepository(repoDir, password)
	if err != nil {
		return nil, err
	}
	return &Repository{repo: r}, nil
}

// Close releases the repository's resources, including its cross-process
// lock. The Repository must not be used afterwards.
func (r *Repository) Close() error {
	return r.repo.Close()
}

// CreateBackup walks rootPath and records it as a new named Backup under
// this repository (spec.md §4.8). The returned hash is the Backup
// record's own key, as later passed to Restore. A non-nil error may
// still carry a valid key, when it's an Errors multi-error reporting
// per-file skips rather than a fatal failure (see walk.CreateBackup).
func (r *Repository) CreateBackup(ctx context.Context, name, rootPath string, conf walk.Config) (hash.Hash256, error) {
	_, key, err := walk.CreateBackup(ctx, r.repo, name, rootPath, conf)
	return key, err
}

// BackupInfo describes one entry returned by ListBackups.
type BackupInfo struct {
	ID        hash.Hash256
	Name      string
	Timestamp time.Time
}

// ListBackups returns every Backup record currently stored in the
// repository, in ascending key order (spec.md §6).
func (r *Repository) ListBackups() ([]BackupInfo, error) {
	var out []BackupInfo
	err := r.repo.Backups.Iter(func(e rcdb.Entry[backup.Record]) error {
		ts, parseErr := e.Value.Time()
		if parseErr != nil {
			ts = time.Time{}
		}
		out = append(out, BackupInfo{ID: e.Key, Name: e.Value.Name, Timestamp: ts})
		return nil
	})
	return out, err
}

// Restore rebuilds the backup identified by id onto disk under destDir
// (spec.md §4.9).
func (r *Repository) Restore(ctx context.Context, id hash.Hash256, destDir string, conf restore.Config) error {
	return restore.Restore(ctx, r.repo, id, destDir, conf)
}
