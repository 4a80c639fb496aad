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

package chunker

// gearTable is the fixed 64-entry gear table used to roll the content
// hash that drives FastCDC cut decisions (spec.md §4.4: "a fixed 64-entry
// gear table (same table across the whole repository; it is a constant,
// not a key)"). Input bytes index the table by their low 6 bits
// (byte & 0x3f), trading some hash quality for a deliberately small,
// auditable constant table. Values are arbitrary fixed 64-bit constants
// with no special structure required beyond being fixed.
var gearTable = [64]uint64{
	0x3b5d3f1a9c7e2b41, 0x7e1c9a3d5f2b8e60, 0x1a9f3c7e5b2d8061, 0x9c3e7b1f5a2d6084,
	0x5f2b8e617c9a3d14, 0x2d8061943b5d3f1a, 0x8e617c9a3d145f2b, 0xc9a3d145f2b8e617,
	0x3f1a9c7e2b415d3b, 0x9a3d5f2b8e617c14, 0x3c7e5b2d80611a9f, 0x7b1f5a2d60849c3e,
	0x2b8e617c9a3d145f, 0x61943b5d3f1a2d80, 0x7c9a3d145f2b8e61, 0xa3d145f2b8e617c9,
	0x1a9c7e2b415d3b3f, 0x3d5f2b8e617c149a, 0x7e5b2d80611a9f3c, 0x1f5a2d60849c3e7b,
	0x8e617c9a3d145f2b, 0x943b5d3f1a2d8061, 0x9a3d145f2b8e617c, 0xd145f2b8e617c9a3,
	0x9c7e2b415d3b3f1a, 0x5f2b8e617c149a3d, 0x5b2d80611a9f3c7e, 0x5a2d60849c3e7b1f,
	0x617c9a3d145f2b8e, 0x3b5d3f1a2d806194, 0x3d145f2b8e617c9a, 0x45f2b8e617c9a3d1,
	0x7e2b415d3b3f1a9c, 0x2b8e617c149a3d5f, 0x2d80611a9f3c7e5b, 0x2d60849c3e7b1f5a,
	0x7c9a3d145f2b8e61, 0x5d3f1a2d8061943b, 0x145f2b8e617c9a3d, 0x5f2b8e617c9a3d14,
	0x2b415d3b3f1a9c7e, 0x8e617c149a3d5f2b, 0x80611a9f3c7e5b2d, 0x60849c3e7b1f5a2d,
	0x9a3d145f2b8e617c, 0x3f1a2d8061943b5d, 0x5f2b8e617c9a3d14, 0xf2b8e617c9a3d145,
	0x415d3b3f1a9c7e2b, 0x617c149a3d5f2b8e, 0x611a9f3c7e5b2d80, 0x849c3e7b1f5a2d60,
	0x3d145f2b8e617c9a, 0x1a2d8061943b5d3f, 0x2b8e617c9a3d145f, 0xb8e617c9a3d145f2,
	0x5d3b3f1a9c7e2b41, 0x7c149a3d5f2b8e61, 0x1a9f3c7e5b2d8061, 0x9c3e7b1f5a2d6084,
	0x145f2b8e617c9a3d, 0x2d8061943b5d3f1a, 0x8e617c9a3d145f2b, 0xe617c9a3d145f2b8,
}
