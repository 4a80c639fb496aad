/*
 * backrub: content-addressed, deduplicating, encrypted backup engine
 * Copyright (C) 2016-2020 SUSE LLC
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

package hardening

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"

	"github.com/br-olf/backrub-go/crypto/hash"
)

func testKey(t *testing.T) hash.Key256 {
	t.Helper()
	k, err := hash.NewKey256()
	if err != nil {
		t.Fatalf("generating test key failed: %v", err)
	}
	return k
}

func TestValid(t *testing.T) {
	key := testKey(t)
	for size := 1; size <= 16384; size *= 2 {
		t.Run(fmt.Sprintf("size:%d", size), func(t *testing.T) {
			buffer := new(bytes.Buffer)
			if _, err := io.CopyN(buffer, rand.Reader, int64(size)); err != nil {
				t.Fatalf("getting random data for buffer failed: %v", err)
			}

			expected := hash.Keyed(key, buffer.Bytes())
			verifiedReader := &VerifiedReadCloser{
				Reader:       io.NopCloser(buffer),
				Key:          key,
				ExpectedHash: expected,
			}

			if _, err := io.Copy(io.Discard, verifiedReader); err != nil {
				t.Errorf("expected hash to be correct on EOF: got an error: %v", err)
			}
			if err := verifiedReader.Close(); err != nil {
				t.Errorf("expected hash to be correct on Close: got an error: %v", err)
			}
		})
	}
}

func TestValidTrailing(t *testing.T) {
	key := testKey(t)
	for size := 2; size <= 16384; size *= 2 {
		t.Run(fmt.Sprintf("size:%d", size), func(t *testing.T) {
			buffer := new(bytes.Buffer)
			if _, err := io.CopyN(buffer, rand.Reader, int64(size)); err != nil {
				t.Fatalf("getting random data for buffer failed: %v", err)
			}

			expected := hash.Keyed(key, buffer.Bytes())
			verifiedReader := &VerifiedReadCloser{
				Reader:       io.NopCloser(buffer),
				Key:          key,
				ExpectedHash: expected,
			}

			// Read only half, leaving bytes remaining. No error yet.
			if _, err := io.CopyN(io.Discard, verifiedReader, int64(size/2)); err != nil {
				t.Errorf("expected no error after reading only %d bytes: got an error: %v", size/2, err)
			}
			if err := verifiedReader.Close(); err != nil {
				t.Errorf("expected hash to be correct on Close: got an error: %v", err)
			}
		})
	}
}

func TestInvalidHash(t *testing.T) {
	key := testKey(t)
	for size := 1; size <= 16384; size *= 2 {
		t.Run(fmt.Sprintf("size:%d", size), func(t *testing.T) {
			buffer := new(bytes.Buffer)
			if _, err := io.CopyN(buffer, rand.Reader, int64(size)); err != nil {
				t.Fatalf("getting random data for buffer failed: %v", err)
			}

			fakeBytes := append(append([]byte{}, buffer.Bytes()[1:]...), 0x80)
			expected := hash.Keyed(key, fakeBytes)
			verifiedReader := &VerifiedReadCloser{
				Reader:       io.NopCloser(buffer),
				Key:          key,
				ExpectedHash: expected,
			}

			if _, err := io.Copy(io.Discard, verifiedReader); errors.Cause(err) != ErrHashMismatch {
				t.Errorf("expected hash to be invalid on EOF: got wrong error: %v", err)
			}
			if err := verifiedReader.Close(); errors.Cause(err) != ErrHashMismatch {
				t.Errorf("expected hash to be invalid on Close: got wrong error: %v", err)
			}
		})
	}
}

func TestNoop(t *testing.T) {
	key := testKey(t)
	buffer := new(bytes.Buffer)
	size := 256
	if _, err := io.CopyN(buffer, rand.Reader, int64(size)); err != nil {
		t.Fatalf("getting random data for buffer failed: %v", err)
	}

	expected := hash.Keyed(key, buffer.Bytes())
	verifiedReader := &VerifiedReadCloser{
		Reader:       io.NopCloser(buffer),
		Key:          key,
		ExpectedHash: expected,
	}

	// An additional wrapper with the same key+hash should be a noop.
	wrappedReader := &VerifiedReadCloser{
		Reader:       verifiedReader,
		Key:          verifiedReader.Key,
		ExpectedHash: verifiedReader.ExpectedHash,
	}

	// ... and one with a different expected hash is not a noop.
	doubleWrappedReader := &VerifiedReadCloser{
		Reader:       wrappedReader,
		Key:          wrappedReader.Key,
		ExpectedHash: hash.Keyed(key, []byte("foo")),
	}

	_, _ = io.Copy(io.Discard, doubleWrappedReader)
	_ = doubleWrappedReader.Close()

	if verifiedReader.hasher == nil {
		t.Errorf("verifiedReader didn't hash input")
	}
	if wrappedReader.hasher != nil {
		t.Errorf("wrappedReader wasn't noop'd out")
	}
	if doubleWrappedReader.hasher == nil {
		t.Errorf("doubleWrappedReader was incorrectly noop'd out")
	}
}
