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

package rcdb

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/br-olf/backrub-go/crypto/hash"
	"github.com/br-olf/backrub-go/store/kv"
)

type testValue string

func (v testValue) MarshalCanonical() ([]byte, error) {
	return []byte(v), nil
}

func decodeTestValue(b []byte) (testValue, error) {
	return testValue(b), nil
}

func newTestDB(t *testing.T) *RCDB[testValue] {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	bucket, err := store.Bucket("values")
	require.NoError(t, err)

	hashKey, err := hash.NewKey256()
	require.NoError(t, err)
	encKey, err := hash.NewKey256()
	require.NoError(t, err)

	return Open[testValue](bucket, hashKey, encKey, decodeTestValue)
}

func TestInsertionRefcount(t *testing.T) {
	db := newTestDB(t)

	var key hash.Hash256
	var rc uint64
	for i := 0; i < 5; i++ {
		var err error
		rc, key, err = db.Insert(testValue("payload"))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(5), rc)

	gotRC, v, found, err := db.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(5), gotRC)
	require.Equal(t, testValue("payload"), v)
}

func TestDecrementSymmetry(t *testing.T) {
	db := newTestDB(t)

	var key hash.Hash256
	for i := 0; i < 3; i++ {
		var err error
		_, key, err = db.Insert(testValue("x"))
		require.NoError(t, err)
	}

	rc, _, found, err := db.Remove(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), rc)

	rc, _, found, err = db.Remove(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), rc)

	rc, _, found, err = db.Remove(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0), rc)

	_, _, found, err = db.Get(key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	db := newTestDB(t)
	var missing hash.Hash256
	_, _, found, err := db.Remove(missing)
	require.NoError(t, err)
	require.False(t, found)
}

func TestPurgeDeletesRegardlessOfRefcount(t *testing.T) {
	db := newTestDB(t)

	var key hash.Hash256
	for i := 0; i < 10; i++ {
		var err error
		_, key, err = db.Insert(testValue("sticky"))
		require.NoError(t, err)
	}

	oldRC, _, found, err := db.Purge(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), oldRC)

	_, _, found, err = db.Get(key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSelfTestPassesOnCleanStore(t *testing.T) {
	db := newTestDB(t)
	_, _, err := db.Insert(testValue("a"))
	require.NoError(t, err)
	_, _, err = db.Insert(testValue("b"))
	require.NoError(t, err)

	require.NoError(t, db.SelfTest())
}

func TestIterYieldsAscendingKeyOrder(t *testing.T) {
	db := newTestDB(t)
	for _, v := range []testValue{"alpha", "beta", "gamma", "delta"} {
		_, _, err := db.Insert(v)
		require.NoError(t, err)
	}

	var keys []hash.Hash256
	require.NoError(t, db.Iter(func(e Entry[testValue]) error {
		keys = append(keys, e.Key)
		return nil
	}))

	require.Len(t, keys, 4)
	for i := 1; i < len(keys); i++ {
		require.True(t, keys[i-1].Less(keys[i]), "iter must yield ascending key order")
	}
}

func TestLenTracksRecordCount(t *testing.T) {
	db := newTestDB(t)
	n, err := db.Len()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, _, err = db.Insert(testValue("one"))
	require.NoError(t, err)
	_, _, err = db.Insert(testValue("two"))
	require.NoError(t, err)

	n, err = db.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestConcurrentInsertsOfSameValueDontLoseUpdates(t *testing.T) {
	db := newTestDB(t)

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _, err := db.Insert(testValue("shared"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rc, v, found, err := db.Get(hash.Keyed(db.hashKey, []byte("shared")))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testValue("shared"), v)
	require.Equal(t, uint64(workers), rc, "every concurrent insert must be reflected in the final refcount")
}

func TestGetWithWrongEncryptionKeyFailsAsCorruption(t *testing.T) {
	db := newTestDB(t)
	_, key, err := db.Insert(testValue("secret"))
	require.NoError(t, err)

	tampered := *db
	tampered.encKey, err = hash.NewKey256()
	require.NoError(t, err)

	_, _, _, err = tampered.Get(key)
	require.Error(t, err)
	var corruption *Corruption
	require.ErrorAs(t, err, &corruption)
}
