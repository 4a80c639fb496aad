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
	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
)

// validateVersion parses v as a semantic version and rejects anything
// whose major version doesn't match CurrentVersion's, so a repository
// written by an incompatible future format fails with a clear error
// instead of a confusing decode failure.
func validateVersion(v string) error {
	parsed, err := semver.Parse(v)
	if err != nil {
		return errors.Wrapf(err, "parse manifest version %q", v)
	}
	current := semver.MustParse(CurrentVersion)
	if parsed.Major != current.Major {
		return errors.Errorf("manifest version %s is incompatible with supported major version %d", v, current.Major)
	}
	return nil
}
