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

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/br-olf/backrub-go/chunker"
	"github.com/br-olf/backrub-go/crypto/hash"
	"github.com/br-olf/backrub-go/inode"
	"github.com/br-olf/backrub-go/manifest"
)

func fastArgonConfig() manifest.Argon2Config {
	return manifest.Argon2Config{
		Threads:    1,
		MemCostKiB: 8 * 1024,
		TimeCost:   1,
		Variant:    "argon2id",
		Version:    0x13,
	}
}

func testChunkerConfig() chunker.Config {
	return chunker.Config{Min: 64, Avg: 256, Max: 1024}
}

func openTestRepo(t *testing.T) *manifest.Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := manifest.CreateRepository(dir, []byte("a password"), testChunkerConfig(), fastArgonConfig())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateBackupSimpleTree(t *testing.T) {
	repo := openTestRepo(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("nested"), 0o644))

	rec, id, err := CreateBackup(context.Background(), repo, "first", root, Config{})
	require.NoError(t, err)
	require.Equal(t, "first", rec.Name)
	require.False(t, id.IsZero())

	_, got, found, err := repo.Backups.Get(id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, got)
}

func TestCreateBackupRootMustBeDir(t *testing.T) {
	repo := openTestRepo(t)

	root := t.TempDir()
	file := filepath.Join(root, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, _, err := CreateBackup(context.Background(), repo, "bad", file, Config{})
	require.Error(t, err)
	var wantErr *BackupRootMustBeDirError
	require.ErrorAs(t, err, &wantErr)
}

func TestCreateBackupDedupesIdenticalFiles(t *testing.T) {
	repo := openTestRepo(t)

	root := t.TempDir()
	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.bin"), content, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "two.bin"), content, 0o644))

	_, id, err := CreateBackup(context.Background(), repo, "dedup", root, Config{})
	require.NoError(t, err)

	rootInode := rootInodeOf(t, repo, id)
	require.Len(t, rootInode.Children, 2)

	var fileHashLists [][]hash.Hash256
	for _, childHash := range rootInode.Children {
		_, child, found, err := repo.Inodes.Get(childHash)
		require.NoError(t, err)
		require.True(t, found)
		fileHashLists = append(fileHashLists, child.ChunkHashes)
	}
	require.NotEmpty(t, fileHashLists[0])
	require.Equal(t, fileHashLists[0], fileHashLists[1], "identical content must chunk identically")

	// The periodic content repeats some chunks inside one file, and every
	// occurrence is a separate ChunkDB.Insert, so a chunk's refcount is
	// its occurrence count per file times the two files.
	occurrences := make(map[hash.Hash256]uint64)
	for _, chunkHash := range fileHashLists[0] {
		occurrences[chunkHash]++
	}
	for chunkHash, n := range occurrences {
		refcount, _, found, err := repo.Chunks.Get(chunkHash)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, 2*n, refcount, "chunk shared by both files must carry one reference per occurrence in each file")
	}
}

// TestCreateBackupDedupeIsRaceFree backs up many identical files with
// concurrent workers, so every shared chunk's refcount is bumped from
// multiple goroutines at once. It would catch a lost-update race in
// ChunkDB.Insert/RCDB.Insert that a single-threaded dedup test can't.
func TestCreateBackupDedupeIsRaceFree(t *testing.T) {
	repo := openTestRepo(t)

	const fileCount = 16
	root := t.TempDir()
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i % 193)
	}
	for i := 0; i < fileCount; i++ {
		name := filepath.Join(root, "f"+string(rune('a'+i))+".bin")
		require.NoError(t, os.WriteFile(name, content, 0o644))
	}

	_, id, err := CreateBackup(context.Background(), repo, "dedup-concurrent", root, Config{Workers: fileCount})
	require.NoError(t, err)

	rootInode := rootInodeOf(t, repo, id)
	require.Len(t, rootInode.Children, fileCount)

	var chunkHashes []hash.Hash256
	for _, childHash := range rootInode.Children {
		_, child, found, err := repo.Inodes.Get(childHash)
		require.NoError(t, err)
		require.True(t, found)
		require.NotEmpty(t, child.ChunkHashes)
		chunkHashes = child.ChunkHashes
	}

	// Chunks can repeat inside one file; each occurrence in each file is
	// one insert.
	occurrences := make(map[hash.Hash256]uint64)
	for _, chunkHash := range chunkHashes {
		occurrences[chunkHash]++
	}
	for chunkHash, n := range occurrences {
		refcount, _, found, err := repo.Chunks.Get(chunkHash)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(fileCount)*n, refcount, "concurrent inserts of the same chunk must not lose updates")
	}
}

func rootInodeOf(t *testing.T, repo *manifest.Repository, backupID hash.Hash256) inode.Inode {
	t.Helper()
	_, rec, found, err := repo.Backups.Get(backupID)
	require.NoError(t, err)
	require.True(t, found)
	_, root, found, err := repo.Inodes.Get(rec.RootInode)
	require.NoError(t, err)
	require.True(t, found)
	return root
}

func TestCreateBackupSkipsUnreadableFileByDefault(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read anything, permission test is meaningless")
	}
	repo := openTestRepo(t)

	root := t.TempDir()
	bad := filepath.Join(root, "locked.txt")
	require.NoError(t, os.WriteFile(bad, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(bad, 0o644) })

	_, _, err := CreateBackup(context.Background(), repo, "partial", root, Config{})
	require.Error(t, err)
	var walkErrs Errors
	require.ErrorAs(t, err, &walkErrs)
	require.Len(t, walkErrs, 1)
}
