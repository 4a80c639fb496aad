/*
 * backrub: content-addressed, deduplicating, encrypted backup engine
 * Copyright (C) 2018 SUSE LLC.
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

// Package hardening wraps readers with streaming integrity verification,
// so that restore-time file reconstruction never hands a caller bytes that
// silently diverge from the content hash recorded in an inode.
package hardening

import (
	"io"

	"github.com/pkg/errors"

	"github.com/br-olf/backrub-go/crypto/hash"
)

// ErrHashMismatch indicates that VerifiedReadCloser encountered a hash
// mismatch on EOF or Close.
var ErrHashMismatch = errors.Errorf("verified reader: hash mismatch")

// VerifiedReadCloser is a basic io.ReadCloser which allows for simple
// verification that a stream matches an expected keyed hash. The entire
// stream is hashed while being passed through this reader, and on EOF it
// will verify that the hash matches ExpectedHash. If not, an error is
// returned. Note that this means you need to read all input to EOF in
// order to find verification errors.
//
// If Reader is a VerifiedReadCloser (with the same Key and ExpectedHash),
// all of the methods are just piped to the underlying methods (with no
// verification in the upper layer).
type VerifiedReadCloser struct {
	// Reader is the underlying reader.
	Reader io.ReadCloser

	// Key is the keyed-hash key the stream is verified under (typically a
	// repository's inode_hash_key).
	Key hash.Key256

	// ExpectedHash is the expected hash. When the underlying reader
	// returns an EOF, the entire stream's keyed hash will be compared to
	// this value and an error will be returned if they don't match.
	ExpectedHash hash.Hash256

	// hasher stores the current state of the stream's hash.
	hasher *hash.KeyedHasher
}

func (v *VerifiedReadCloser) init() {
	if v.hasher == nil {
		v.hasher = hash.NewKeyedHasher(v.Key)
	}
}

func (v *VerifiedReadCloser) isNoop() bool {
	innerV, ok := v.Reader.(*VerifiedReadCloser)
	return ok && innerV.Key == v.Key && innerV.ExpectedHash == v.ExpectedHash
}

// Read is a wrapper around VerifiedReadCloser.Reader, with a hash check on
// EOF. Make sure that you always check for EOF and read-to-the-end for all
// files.
func (v *VerifiedReadCloser) Read(p []byte) (int, error) {
	n, err := v.Reader.Read(p)
	if v.isNoop() {
		return n, err
	}
	v.init()
	if n > 0 {
		// KeyedHasher.Write never fails.
		v.hasher.Write(p[:n])
	}
	if errors.Cause(err) == io.EOF {
		if actual := v.hasher.Sum(); !actual.Equal(v.ExpectedHash) {
			err = errors.Wrapf(ErrHashMismatch, "expected %s not %s", v.ExpectedHash, actual)
		}
	}
	return n, err
}

// Close is a wrapper around VerifiedReadCloser.Reader, but with a hash check
// which will return an error if the underlying Close() didn't. Any unread
// remainder of the stream is read and discarded first, so the check always
// covers the whole stream.
func (v *VerifiedReadCloser) Close() error {
	if _, err := io.Copy(io.Discard, v); err != nil {
		return errors.Wrap(err, "consume remaining unverified stream")
	}
	err := v.Reader.Close()
	if err != nil {
		return err
	}
	if v.isNoop() {
		return err
	}
	v.init()
	if actual := v.hasher.Sum(); !actual.Equal(v.ExpectedHash) {
		err = errors.Wrapf(ErrHashMismatch, "expected %s not %s", v.ExpectedHash, actual)
	}
	return err
}
