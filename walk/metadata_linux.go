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
	"syscall"

	"github.com/pkg/errors"

	"github.com/br-olf/backrub-go/inode"
)

// lstatMetadata captures an entry's POSIX metadata without following a
// final symlink component, mirroring the teacher's pkg/system direct-
// syscall style (pkg/system/utime_linux.go) rather than going through
// os.FileInfo's lossy cross-platform subset.
func lstatMetadata(path string) (inode.Metadata, error) {
	var st syscall.Stat_t
	if err := syscall.Lstat(path, &st); err != nil {
		return inode.Metadata{}, errors.Wrapf(err, "lstat %q", path)
	}
	return statMetadata(st), nil
}

// statMetadataFollow is lstatMetadata's symlink-following counterpart,
// used when CreateBackup is configured to follow symlinks.
func statMetadataFollow(path string) (inode.Metadata, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return inode.Metadata{}, errors.Wrapf(err, "stat %q", path)
	}
	return statMetadata(st), nil
}

func statMetadata(st syscall.Stat_t) inode.Metadata {
	return inode.Metadata{
		Mode:      st.Mode,
		UID:       st.Uid,
		GID:       st.Gid,
		MtimeSec:  int64(st.Mtim.Sec),
		MtimeNsec: int64(st.Mtim.Nsec),
		CtimeSec:  int64(st.Ctim.Sec),
		CtimeNsec: int64(st.Ctim.Nsec),
	}
}
