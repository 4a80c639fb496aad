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

package main

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func readPassword(ctx *cli.Context) ([]byte, error) {
	path := ctx.GlobalString("password-file")
	if path == "" {
		return nil, errors.New("missing mandatory flag --password-file")
	}

	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read --password-file")
	}

	return bytes.TrimRight(raw, "\r\n"), nil
}

func repoPath(ctx *cli.Context) string {
	return ctx.GlobalString("repo")
}
