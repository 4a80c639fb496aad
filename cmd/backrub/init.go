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
	"github.com/apex/log"
	"github.com/urfave/cli"

	backrub "github.com/br-olf/backrub-go"
	"github.com/br-olf/backrub-go/chunker"
	"github.com/br-olf/backrub-go/manifest"
)

var initCommand = cli.Command{
	Name:      "init",
	Usage:     "create a new, empty repository",
	ArgsUsage: "--repo <path> --password-file <path>",
	Action:    initAction,
}

func initAction(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	repo, err := backrub.CreateRepository(repoPath(ctx), password, chunker.DefaultConfig(), manifest.DefaultArgon2Config())
	if err != nil {
		return err
	}
	defer repo.Close()

	log.WithField("repo", repoPath(ctx)).Info("backrub: repository created")
	return nil
}
