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

// Package kv is the thin ordered-embedded-KV-store layer RCDB is built on
// top of: one bolt.DB file per repository, one bucket per logical store
// (chunks, inodes, backups). Grounded on the pack-attested use of
// go.etcd.io/bbolt in other_examples/manifests/ivoronin-dupedog — bolt
// buckets iterate keys in byte-lexicographic order for free, exactly the
// ordering RCDB.iter and self_test require. Bolt only ever runs one write
// transaction at a time for the whole Store, so a single call into Update
// is atomic with respect to every other Put/Delete/Update call on any
// bucket in the same Store; a Get followed by a separate later Put is NOT
// atomic, since another write transaction can run in between.
package kv

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Store is a single bolt-backed database file holding one or more named
// buckets. It corresponds to the repository's `backrub.db`.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open kv store %q", path)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close kv store")
}

// Bucket returns a handle onto the named bucket, creating it if it
// doesn't already exist.
func (s *Store) Bucket(name string) (*Bucket, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create bucket %q", name)
	}
	return &Bucket{db: s.db, name: []byte(name)}, nil
}

// Bucket is a handle onto one named bucket within a Store, providing
// atomic per-key operations and full, key-ordered iteration.
type Bucket struct {
	db   *bolt.DB
	name []byte
}

// Put atomically stores value under key, overwriting any existing value.
func (b *Bucket) Put(key, value []byte) error {
	return errors.Wrap(b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).Put(key, value)
	}), "put")
}

// Get returns the value stored under key, or nil if absent. The returned
// slice is a copy safe to retain past the call.
func (b *Bucket) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.name).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "get")
	}
	return out, nil
}

// Delete removes key, if present. It is not an error to delete an absent
// key.
func (b *Bucket) Delete(key []byte) error {
	return errors.Wrap(b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).Delete(key)
	}), "delete")
}

// Update runs a single read-modify-write cycle on key inside one bolt
// write transaction: it reads the existing value (nil if absent), passes
// it to fn, and stores fn's result — or deletes key if fn returns a nil
// newValue — before the transaction commits. Because bolt serializes all
// write transactions against a Store, this makes the whole decide step
// atomic with respect to every other call into Update/Put/Delete on any
// bucket of the same Store, which plain Get-then-Put is not: callers that
// need to inspect a value before deciding what to write (refcounting,
// insert-or-bump, compare-and-swap) must use Update instead.
func (b *Bucket) Update(key []byte, fn func(existing []byte) (newValue []byte, err error)) error {
	return errors.Wrap(b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.name)
		var existing []byte
		if v := bucket.Get(key); v != nil {
			existing = append([]byte(nil), v...)
		}
		newValue, err := fn(existing)
		if err != nil {
			return err
		}
		if newValue == nil {
			return bucket.Delete(key)
		}
		return bucket.Put(key, newValue)
	}), "update")
}

// Len returns the number of entries in the bucket via a full scan.
func (b *Bucket) Len() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(b.name).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "len")
	}
	return n, nil
}

// ForEach calls fn for every (key, value) pair in the bucket in ascending
// key order, stopping early if fn returns an error.
func (b *Bucket) ForEach(fn func(key, value []byte) error) error {
	return errors.Wrap(b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).ForEach(fn)
	}), "foreach")
}
