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

// Package walk implements the backup engine's filesystem walk (spec.md
// §4.8): it turns a directory tree into the File/Directory/Symlink inode
// DAG, chunking and deduplicating file contents through a Repository's
// ChunkDB/InodeDB, and produces the root Backup record.
//
// Grounded on the teacher's oci/layer tar generation walk (tar_generate.go
// partitions a directory's entries and recurses in directory-read order,
// tracking per-entry failures) and on its root-level fseval abstraction
// for Lstat/Readlink; our variant drops the OCI tar framing entirely and
// writes straight into the Repository's encrypted, reference-counted
// stores instead of a tar stream. The worker-pool/committer split (spec.md
// §5) is grounded on golang.org/x/sync/errgroup, already an indirect
// dependency of the teacher's own module graph and made direct here: each
// directory level fans its entries out through an errgroup so siblings
// chunk and hash concurrently, while every regular file acquires a shared
// semaphore before it is mapped and chunked, bounding the CPU-bound work
// to one configurable worker count regardless of tree shape (directory
// and symlink entries do not take the semaphore). Every
// RCDB/ChunkDB mutation that needs to read a record before deciding what
// to write it back as (insert-or-bump, decrement-or-delete) goes through
// store/kv's Bucket.Update, which runs the whole read-decide-write cycle
// inside one bolt write transaction; since bolt admits only one such
// transaction at a time for the whole store, concurrent siblings bumping
// the same chunk's refcount serialize there instead of racing. That is
// the "single committer" spec.md §5 asks for — no separate committer
// goroutine is needed on top of it.
package walk

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/apex/log"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/br-olf/backrub-go/backup"
	"github.com/br-olf/backrub-go/chunker"
	"github.com/br-olf/backrub-go/crypto/envelope"
	"github.com/br-olf/backrub-go/crypto/hash"
	"github.com/br-olf/backrub-go/inode"
	"github.com/br-olf/backrub-go/internal/funchelpers"
	"github.com/br-olf/backrub-go/internal/system"
	"github.com/br-olf/backrub-go/manifest"
)

// Config controls a single CreateBackup invocation.
type Config struct {
	// FollowSymlinks makes the walk descend into symlinked directories
	// and chunk symlinked regular files as if they were the real thing,
	// instead of recording a Symlink inode (spec.md §4.8).
	FollowSymlinks bool

	// AbortOnError selects the alternative failure policy spec.md §4.8
	// names as a valid variant: abort the whole backup on the first
	// per-file error instead of the default collect-and-continue.
	AbortOnError bool

	// Workers bounds how many files are chunked/hashed/encrypted
	// concurrently. Zero means runtime.NumCPU().
	Workers int
}

// CreateBackup implements spec.md §4.8: walk root_path, insert every
// chunk and inode it finds into repo's stores, and commit a Backup
// record naming the resulting root Directory inode. The returned error is
// non-nil (an Errors multi-error) whenever one or more files were
// skipped; the returned Record is valid and already committed regardless
// — per spec.md, "a backup with ≥1 skipped file is still committed" is
// the default policy, so callers must inspect the error without assuming
// it means the backup failed. A nil Record is only ever paired with a
// fatal (non-Errors) error.
func CreateBackup(ctx context.Context, repo *manifest.Repository, name, rootPath string, conf Config) (backup.Record, hash.Hash256, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return backup.Record{}, hash.Hash256{}, errors.Wrap(err, "stat backup root")
	}
	if !info.IsDir() {
		return backup.Record{}, hash.Hash256{}, &BackupRootMustBeDirError{Path: rootPath}
	}
	if conf.Workers <= 0 {
		conf.Workers = runtime.NumCPU()
	}

	w := &walker{repo: repo, conf: conf, sem: make(chan struct{}, conf.Workers)}

	log.WithFields(log.Fields{"name": name, "root": rootPath, "workers": conf.Workers}).Info("backup: starting walk")

	rootHash, err := w.walkDir(ctx, rootPath, ".")
	if err != nil {
		return backup.Record{}, hash.Hash256{}, errors.Wrap(err, "walk backup root")
	}

	rec := backup.New(name, rootHash, time.Now())
	_, backupKey, err := repo.Backups.Insert(rec)
	if err != nil {
		return backup.Record{}, hash.Hash256{}, errors.Wrap(err, "insert backup record")
	}
	if err := repo.Commit(); err != nil {
		return backup.Record{}, hash.Hash256{}, errors.Wrap(err, "commit manifest")
	}

	log.WithFields(log.Fields{"name": name, "root_inode": rootHash.String(), "skipped": len(w.errs)}).Info("backup: committed")

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.errs) > 0 {
		return rec, backupKey, Errors(append([]*FileError(nil), w.errs...))
	}
	return rec, backupKey, nil
}

// walker holds the state shared across one CreateBackup's whole recursive
// walk: the repository being populated, the CPU-work semaphore, and the
// accumulated per-file errors (spec.md §4.8's collect-and-continue list).
type walker struct {
	repo *manifest.Repository
	conf Config

	sem chan struct{}

	mu   sync.Mutex
	errs []*FileError
}

// statMeta captures metadata for a directory or file entry, following a
// final symlink component when the walk is configured to (so a followed
// symlinked directory's Directory inode carries the target's metadata,
// not the link's). Symlink entries themselves always use lstatMetadata
// directly, since they're recorded as links regardless of this setting.
func (w *walker) statMeta(diskPath string) (inode.Metadata, error) {
	if w.conf.FollowSymlinks {
		return statMetadataFollow(diskPath)
	}
	return lstatMetadata(diskPath)
}

func (w *walker) recordError(path string, err error) (abort error) {
	w.mu.Lock()
	w.errs = append(w.errs, &FileError{Path: path, Err: err})
	w.mu.Unlock()
	log.WithFields(log.Fields{"path": path, "err": err}).Warn("backup: skipping entry")
	if w.conf.AbortOnError {
		return err
	}
	return nil
}

// entryKind classifies a directory entry, resolving through a symlink
// when the walk is configured to follow them.
type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindSymlink
	kindOther
)

func (w *walker) classify(diskPath string, d fs.DirEntry) (entryKind, error) {
	if d.Type()&fs.ModeSymlink != 0 && !w.conf.FollowSymlinks {
		return kindSymlink, nil
	}

	info, err := os.Stat(diskPath)
	if err != nil {
		if d.Type()&fs.ModeSymlink != 0 {
			// A symlink we were asked to follow but whose target is
			// unreachable (dangling link): fall back to recording it
			// as a Symlink inode rather than failing the whole entry.
			return kindSymlink, nil
		}
		return kindOther, err
	}
	switch {
	case info.IsDir():
		return kindDir, nil
	case info.Mode().IsRegular():
		return kindFile, nil
	default:
		return kindOther, nil
	}
}

// walkDir processes one directory: it lists entries (os.ReadDir sorts by
// name, giving a deterministic walk order), fans per-entry work out through
// an errgroup (file entries take w.sem inside processFile; the errgroup
// itself sets no limit), and folds the results into a
// Directory inode in the original listing order — never the completion
// order of the concurrent goroutines (spec.md §5's ordering guarantee).
func (w *walker) walkDir(ctx context.Context, diskPath, relPath string) (hash.Hash256, error) {
	entries, err := os.ReadDir(diskPath)
	if err != nil {
		return hash.ZeroHash256, errors.Wrapf(err, "read directory %q", diskPath)
	}

	results := make([]hash.Hash256, len(entries))
	ok := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		i, entry := i, entry
		childDisk := filepath.Join(diskPath, entry.Name())
		childRel := filepath.Join(relPath, entry.Name())

		g.Go(func() error {
			kind, err := w.classify(childDisk, entry)
			if err != nil {
				return w.recordError(childDisk, err)
			}

			var h hash.Hash256
			switch kind {
			case kindDir:
				h, err = w.walkDir(gctx, childDisk, childRel)
			case kindFile:
				h, err = w.processFile(gctx, childDisk, childRel)
			case kindSymlink:
				h, err = w.processSymlink(childDisk, childRel)
			default:
				return nil
			}
			if err != nil {
				return w.recordError(childDisk, err)
			}
			results[i] = h
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return hash.ZeroHash256, err
	}

	children := make([]hash.Hash256, 0, len(entries))
	for i := range entries {
		if ok[i] {
			children = append(children, results[i])
		}
	}

	meta, err := w.statMeta(diskPath)
	if err != nil {
		return hash.ZeroHash256, errors.Wrapf(err, "stat directory %q", diskPath)
	}

	dirInode := inode.NewDirectory([]byte(relPath), meta, children)
	_, key, err := w.repo.Inodes.Insert(dirInode)
	if err != nil {
		return hash.ZeroHash256, errors.Wrapf(err, "insert directory inode %q", relPath)
	}
	return key, nil
}

// processFile implements the per-file half of spec.md §4.8's state
// machine (Opened → Mapped → Chunking(i) → Inserting(i) →
// (WritingChunk(i) | Deduped(i)) → ... → InodeInserted). Acquiring w.sem
// bounds how many files are mapped and chunked concurrently; everything
// below the acquire is the CPU-bound portion spec.md §5 assigns to the
// worker pool.
func (w *walker) processFile(ctx context.Context, diskPath, relPath string) (hash.Hash256, error) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return hash.ZeroHash256, ctx.Err()
	}
	defer func() { <-w.sem }()

	mf, err := chunker.OpenMappedFile(diskPath)
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "map file")
	}
	defer mf.Close()

	chunks, fileHash, err := chunker.ChunkAndHash(mf.Bytes(), w.repo.ChunkerConfig(), w.repo.ChunkHashKey(), w.repo.InodeHashKey())
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "chunk file")
	}

	chunkHashes := make([]hash.Hash256, len(chunks))
	for i, c := range chunks {
		if ctx.Err() != nil {
			return hash.ZeroHash256, ctx.Err()
		}
		chunkHashes[i] = c.Hash

		refcount, path, err := w.repo.Chunks.Insert(c.Hash, func(path string) error {
			return w.writeChunkFile(path, c.Data)
		})
		if err != nil {
			return hash.ZeroHash256, errors.Wrapf(err, "insert chunk %s", c.Hash)
		}
		if refcount == 1 {
			log.WithFields(log.Fields{"chunk": c.Hash.String(), "path": path}).Debug("backup: wrote new chunk")
		} else {
			log.WithFields(log.Fields{"chunk": c.Hash.String(), "refcount": refcount}).Debug("backup: deduplicated chunk")
		}
	}

	meta, err := w.statMeta(diskPath)
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "stat file")
	}

	fileInode := inode.NewFile([]byte(relPath), chunkHashes, meta, fileHash)
	_, key, err := w.repo.Inodes.Insert(fileInode)
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "insert file inode")
	}
	return key, nil
}

// writeChunkFile seals chunk bytes into the envelope format and writes
// them under the repository's chunk root, creating missing parent
// directories. It is only ever invoked by ChunkDB.Insert when a chunk
// hash is new, and only the successful completion of this call is
// followed by the refcount-1 record being persisted (spec.md §4.8's
// chosen crash-safety ordering: write-then-bump).
func (w *walker) writeChunkFile(path string, data []byte) (retErr error) {
	sealed, err := envelope.CompressAndEncrypt(data, w.repo.ChunkEncKey())
	if err != nil {
		return errors.Wrap(err, "seal chunk")
	}

	root, err := w.repo.ChunkRootDir()
	if err != nil {
		return errors.Wrap(err, "resolve chunk root")
	}
	abs, err := securejoin.SecureJoin(root, path)
	if err != nil {
		return errors.Wrap(err, "resolve chunk path")
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return errors.Wrap(err, "create chunk directory")
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, "create chunk file")
	}
	defer funchelpers.VerifyError(&retErr, f.Close)

	if _, err := system.Copy(f, bytes.NewReader(sealed)); err != nil {
		return errors.Wrap(err, "write chunk file")
	}
	return nil
}

func (w *walker) processSymlink(diskPath, relPath string) (hash.Hash256, error) {
	target, err := os.Readlink(diskPath)
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "readlink")
	}
	meta, err := lstatMetadata(diskPath)
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "lstat symlink")
	}

	symInode := inode.NewSymlink([]byte(relPath), meta, []byte(target))
	_, key, err := w.repo.Inodes.Insert(symInode)
	if err != nil {
		return hash.ZeroHash256, errors.Wrap(err, "insert symlink inode")
	}
	return key, nil
}
