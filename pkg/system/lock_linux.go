/*
 * backrub: content-addressed, deduplicating, encrypted backup engine
 * Copyright (C) 2016 SUSE LLC.
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

package system

import "syscall"

// Flock is a wrapper around flock(2).
func Flock(fd uintptr, exclusive bool) error {
	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	return syscall.Flock(int(fd), how|syscall.LOCK_NB)
}

// Unflock is a wrapper around flock(2).
func Unflock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
