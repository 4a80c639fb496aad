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

package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/br-olf/backrub-go/crypto/hash"
)

func mustKey(t *testing.T) hash.Key256 {
	t.Helper()
	k, err := hash.NewKey256()
	require.NoError(t, err)
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := mustKey(t)
	plaintext := []byte("hello, backrub")

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	got, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := mustKey(t)
	other := mustKey(t)

	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, other)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptBitFlipFails(t *testing.T) {
	key := mustKey(t)
	ciphertext, err := Encrypt([]byte("tamper me"), key)
	require.NoError(t, err)

	for i := range ciphertext {
		flipped := append([]byte(nil), ciphertext...)
		flipped[i] ^= 0x01
		_, err := Decrypt(flipped, key)
		require.Errorf(t, err, "flipping byte %d should break decryption", i)
	}
}

func TestCompressAndEncryptRoundTrip(t *testing.T) {
	key := mustKey(t)
	plaintext := bytesRepeat('A', 4096)

	ciphertext, err := CompressAndEncrypt(plaintext, key)
	require.NoError(t, err)
	require.Less(t, len(ciphertext), len(plaintext), "highly compressible input should shrink")

	got, err := DecryptAndUncompress(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestCompressAndEncryptWrongKeyFails(t *testing.T) {
	key := mustKey(t)
	other := mustKey(t)

	ciphertext, err := CompressAndEncrypt([]byte("compress this"), key)
	require.NoError(t, err)

	_, err = DecryptAndUncompress(ciphertext, other)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
