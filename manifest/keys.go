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
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"

	"github.com/br-olf/backrub-go/crypto/hash"
)

// derivedKeys is the 160-byte Argon2id output split in the fixed order
// spec.md §4.7 mandates: sig_key | kek_chunk_hash | kek_chunk_enc |
// kek_inode_hash | kek_inode_enc.
type derivedKeys struct {
	SigKey       hash.Key256
	KEKChunkHash hash.Key256
	KEKChunkEnc  hash.Key256
	KEKInodeHash hash.Key256
	KEKInodeEnc  hash.Key256
}

const derivedKeyLen = 5 * hash.Size

// deriveKeys stretches password over salt with conf's Argon2id
// parameters into the signature key and four KEKs.
func deriveKeys(password, salt []byte, conf Argon2Config) (derivedKeys, error) {
	out := argon2.IDKey(password, salt, conf.TimeCost, conf.MemCostKiB, conf.Threads, derivedKeyLen)

	var d derivedKeys
	var err error
	if d.SigKey, err = hash.Key256FromBytes(out[0:32]); err != nil {
		return derivedKeys{}, errors.Wrap(err, "split sig_key")
	}
	if d.KEKChunkHash, err = hash.Key256FromBytes(out[32:64]); err != nil {
		return derivedKeys{}, errors.Wrap(err, "split kek_chunk_hash")
	}
	if d.KEKChunkEnc, err = hash.Key256FromBytes(out[64:96]); err != nil {
		return derivedKeys{}, errors.Wrap(err, "split kek_chunk_enc")
	}
	if d.KEKInodeHash, err = hash.Key256FromBytes(out[96:128]); err != nil {
		return derivedKeys{}, errors.Wrap(err, "split kek_inode_hash")
	}
	if d.KEKInodeEnc, err = hash.Key256FromBytes(out[128:160]); err != nil {
		return derivedKeys{}, errors.Wrap(err, "split kek_inode_enc")
	}
	return d, nil
}

// xorKey masks (or, applied again, unmasks) a data key with a KEK.
func xorKey(a, b hash.Key256) hash.Key256 {
	var out hash.Key256
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
