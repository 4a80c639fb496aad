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

import (
	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// ParseConfig builds a Config from human-readable sizes ("4KiB", "1MiB",
// or plain byte counts), resolving them to the numeric form the core
// always stores internally. This is config resolution, not business
// logic — callers (a CLI flag parser, a config file loader) hand it
// strings; the core never parses argv or files itself.
func ParseConfig(min, avg, max string) (Config, error) {
	minB, err := units.RAMInBytes(min)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse minimum chunk size %q", min)
	}
	avgB, err := units.RAMInBytes(avg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse average chunk size %q", avg)
	}
	maxB, err := units.RAMInBytes(max)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse maximum chunk size %q", max)
	}

	cfg := Config{Min: uint64(minB), Avg: uint64(avgB), Max: uint64(maxB)}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
