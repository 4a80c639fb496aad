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

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"

	"github.com/br-olf/backrub-go/backup"
	"github.com/br-olf/backrub-go/chunker"
	"github.com/br-olf/backrub-go/crypto/hash"
	"github.com/br-olf/backrub-go/inode"
	"github.com/br-olf/backrub-go/pathgen"
	pkgsystem "github.com/br-olf/backrub-go/pkg/system"
	"github.com/br-olf/backrub-go/store/chunkdb"
	"github.com/br-olf/backrub-go/store/kv"
	"github.com/br-olf/backrub-go/store/rcdb"
)

const manifestFileName = "backrub.manifest"
const lockFileName = "backrub.lock"

// acquireLock takes an exclusive, non-blocking advisory lock on
// repoDir's lock file, enforcing the single-writer requirement across
// processes (spec.md §5 describes it within one process; flock(2)
// extends the same guarantee system-wide). The returned file must be
// held open for as long as the repository is, and closing it releases
// the lock.
func acquireLock(repoDir string) (*os.File, error) {
	lockPath := filepath.Join(repoDir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	if err := pkgsystem.Flock(f.Fd(), true); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, &RepositoryLockedError{Path: repoDir}
		}
		return nil, errors.Wrap(err, "lock repository")
	}
	return f, nil
}

// Repository bundles the manifest's key hierarchy with the fully
// constructed, self-tested stores spec.md §4.7's Open/Create protocols
// produce: the KV backend and the ChunkDB/InodeDB/BackupDB built on it.
type Repository struct {
	dir          string
	manifestPath string
	doc          document

	sigKey       hash.Key256
	chunkHashKey hash.Key256
	chunkEncKey  hash.Key256
	inodeHashKey hash.Key256
	inodeEncKey  hash.Key256

	kv       *kv.Store
	lockFile *os.File

	Chunks  *chunkdb.ChunkDB
	Inodes  *rcdb.RCDB[inode.Inode]
	Backups *rcdb.RCDB[backup.Record]
}

// CreateRepository implements spec.md §4.7's Create protocol: generate a
// salt and four random data keys, derive the signature key and KEKs from
// password, mask the data keys, open a fresh KV backend (failing if one
// already exists), and write the signed manifest.
func CreateRepository(repoDir string, password []byte, chunkerConf chunker.Config, argonConf Argon2Config) (*Repository, error) {
	if err := chunkerConf.Validate(); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(repoDir, manifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		return nil, &DbAlreadyExistsError{Path: manifestPath}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "stat manifest")
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "generate salt")
	}

	chunkHashKey, err := hash.NewKey256()
	if err != nil {
		return nil, errors.Wrap(err, "generate chunk_hash_key")
	}
	chunkEncKey, err := hash.NewKey256()
	if err != nil {
		return nil, errors.Wrap(err, "generate chunk_enc_key")
	}
	inodeHashKey, err := hash.NewKey256()
	if err != nil {
		return nil, errors.Wrap(err, "generate inode_hash_key")
	}
	inodeEncKey, err := hash.NewKey256()
	if err != nil {
		return nil, errors.Wrap(err, "generate inode_enc_key")
	}

	derived, err := deriveKeys(password, salt, argonConf)
	if err != nil {
		return nil, errors.Wrap(err, "derive keys")
	}

	doc := document{
		Salt:         salt,
		ChunkRootDir: "data",
		DBPath:       "backrub.db",
		Version:      CurrentVersion,
		ChunkerConf:  chunkerConf,
		Keys: maskedKeys{
			ChunkHashKey: xorKey(chunkHashKey, derived.KEKChunkHash),
			ChunkEncKey:  xorKey(chunkEncKey, derived.KEKChunkEnc),
			InodeHashKey: xorKey(inodeHashKey, derived.KEKInodeHash),
			InodeEncKey:  xorKey(inodeEncKey, derived.KEKInodeEnc),
		},
		Argon2Conf: argonConf,
	}

	chunkRootAbs, err := securejoin.SecureJoin(repoDir, doc.ChunkRootDir)
	if err != nil {
		return nil, errors.Wrap(err, "resolve chunk root dir")
	}
	if err := os.MkdirAll(chunkRootAbs, 0o700); err != nil {
		return nil, errors.Wrap(err, "create chunk root dir")
	}

	dbAbsPath, err := securejoin.SecureJoin(repoDir, doc.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "resolve db path")
	}
	if _, err := os.Stat(dbAbsPath); err == nil {
		return nil, &DbAlreadyExistsError{Path: dbAbsPath}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "stat db")
	}

	lockFile, err := acquireLock(repoDir)
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(dbAbsPath)
	if err != nil {
		lockFile.Close()
		return nil, err
	}

	repo, err := newRepository(repoDir, manifestPath, doc, derived.SigKey, chunkHashKey, chunkEncKey, inodeHashKey, inodeEncKey, store, pathgen.New())
	if err != nil {
		store.Close()
		lockFile.Close()
		return nil, err
	}
	repo.lockFile = lockFile

	if err := repo.writeManifest(); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// OpenRepository implements spec.md §4.7's Open protocol: read the
// manifest, derive keys, verify the signature, unmask data keys, open
// the existing KV backend, construct each store, and self-test all of
// them before returning.
func OpenRepository(repoDir string, password []byte) (*Repository, error) {
	manifestPath := filepath.Join(repoDir, manifestFileName)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DbDidNotExistError{Path: manifestPath}
		}
		return nil, errors.Wrap(err, "read manifest")
	}

	var signed signedDocument
	if err := json.Unmarshal(raw, &signed); err != nil {
		return nil, errors.Wrap(err, "parse manifest")
	}

	if err := validateVersion(signed.Manifest.Version); err != nil {
		return nil, err
	}

	derived, err := deriveKeys(password, signed.Manifest.Salt, signed.Manifest.Argon2Conf)
	if err != nil {
		return nil, errors.Wrap(err, "derive keys")
	}

	docBytes, err := json.Marshal(signed.Manifest)
	if err != nil {
		return nil, errors.Wrap(err, "re-marshal manifest")
	}
	if !hash.Keyed(derived.SigKey, docBytes).ConstantTimeEqual(signed.Signature) {
		return nil, ErrInvalidSignature
	}

	chunkHashKey := xorKey(signed.Manifest.Keys.ChunkHashKey, derived.KEKChunkHash)
	chunkEncKey := xorKey(signed.Manifest.Keys.ChunkEncKey, derived.KEKChunkEnc)
	inodeHashKey := xorKey(signed.Manifest.Keys.InodeHashKey, derived.KEKInodeHash)
	inodeEncKey := xorKey(signed.Manifest.Keys.InodeEncKey, derived.KEKInodeEnc)

	dbAbsPath, err := securejoin.SecureJoin(repoDir, signed.Manifest.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "resolve db path")
	}
	if _, err := os.Stat(dbAbsPath); err != nil {
		if os.IsNotExist(err) {
			return nil, &DbDidNotExistError{Path: dbAbsPath}
		}
		return nil, errors.Wrap(err, "stat db")
	}

	lockFile, err := acquireLock(repoDir)
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(dbAbsPath)
	if err != nil {
		lockFile.Close()
		return nil, err
	}

	paths := pathgen.FromState(signed.Manifest.ChunkDBState)
	repo, err := newRepository(repoDir, manifestPath, signed.Manifest, derived.SigKey, chunkHashKey, chunkEncKey, inodeHashKey, inodeEncKey, store, paths)
	if err != nil {
		store.Close()
		lockFile.Close()
		return nil, err
	}
	repo.lockFile = lockFile

	if err := repo.Chunks.SelfTest(); err != nil {
		repo.Close()
		return nil, errors.Wrap(err, "chunk db self-test")
	}
	if err := repo.Inodes.SelfTest(); err != nil {
		repo.Close()
		return nil, errors.Wrap(err, "inode db self-test")
	}
	if err := repo.Backups.SelfTest(); err != nil {
		repo.Close()
		return nil, errors.Wrap(err, "backup db self-test")
	}
	return repo, nil
}

func newRepository(repoDir, manifestPath string, doc document, sigKey, chunkHashKey, chunkEncKey, inodeHashKey, inodeEncKey hash.Key256, store *kv.Store, paths *pathgen.Generator) (*Repository, error) {
	chunkBucket, err := store.Bucket("chunks")
	if err != nil {
		return nil, err
	}
	inodeBucket, err := store.Bucket("inodes")
	if err != nil {
		return nil, err
	}
	backupBucket, err := store.Bucket("backups")
	if err != nil {
		return nil, err
	}

	return &Repository{
		dir:          repoDir,
		manifestPath: manifestPath,
		doc:          doc,
		sigKey:       sigKey,
		chunkHashKey: chunkHashKey,
		chunkEncKey:  chunkEncKey,
		inodeHashKey: inodeHashKey,
		inodeEncKey:  inodeEncKey,
		kv:           store,
		Chunks:       chunkdb.Open(chunkBucket, chunkEncKey, paths),
		// Backup records share the inode namespace's keys: spec.md §4.7
		// defines only four data keys, and a backup record's identity is
		// conceptually an inode-DAG root pointer, not a distinct concern.
		Inodes:  rcdb.Open[inode.Inode](inodeBucket, inodeHashKey, inodeEncKey, inode.Decode),
		Backups: rcdb.Open[backup.Record](backupBucket, inodeHashKey, inodeEncKey, backup.Decode),
	}, nil
}

func (r *Repository) writeManifest() error {
	r.doc.ChunkDBState = r.Chunks.PathGenState()

	docBytes, err := json.Marshal(r.doc)
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	signature := hash.Keyed(r.sigKey, docBytes)

	out, err := json.Marshal(signedDocument{Manifest: r.doc, Signature: signature})
	if err != nil {
		return errors.Wrap(err, "marshal signed manifest")
	}
	return errors.Wrap(os.WriteFile(r.manifestPath, out, 0o600), "write manifest")
}

// Commit implements spec.md §4.7's Commit protocol: rewrite the manifest
// with the ChunkDB's current PathGen state and a fresh signature. Callers
// invoke this once per successful backup.
func (r *Repository) Commit() error {
	return r.writeManifest()
}

// ChunkHashKey returns the unmasked key used to compute chunk content
// hashes.
func (r *Repository) ChunkHashKey() hash.Key256 { return r.chunkHashKey }

// ChunkEncKey returns the unmasked key used to seal chunk bytes on disk.
func (r *Repository) ChunkEncKey() hash.Key256 { return r.chunkEncKey }

// InodeHashKey returns the unmasked key used to compute inode and file
// identity hashes.
func (r *Repository) InodeHashKey() hash.Key256 { return r.inodeHashKey }

// ChunkerConfig returns the repository's fixed chunking parameters.
func (r *Repository) ChunkerConfig() chunker.Config { return r.doc.ChunkerConf }

// ChunkRootDir resolves the repository's chunk storage root, securely
// joined against the repository directory.
func (r *Repository) ChunkRootDir() (string, error) {
	return securejoin.SecureJoin(r.dir, r.doc.ChunkRootDir)
}

// Close releases the KV backend and the repository's advisory lock, and
// best-effort zeroizes in-memory data keys (spec.md §5: "Data keys are
// held in memory for the manager's lifetime and zeroized on teardown").
func (r *Repository) Close() error {
	zero := func(k *hash.Key256) {
		for i := range k {
			k[i] = 0
		}
	}
	zero(&r.sigKey)
	zero(&r.chunkHashKey)
	zero(&r.chunkEncKey)
	zero(&r.inodeHashKey)
	zero(&r.inodeEncKey)

	err := r.kv.Close()
	if r.lockFile != nil {
		pkgsystem.Unflock(r.lockFile.Fd())
		if closeErr := r.lockFile.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
