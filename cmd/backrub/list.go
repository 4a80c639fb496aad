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
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	backrub "github.com/br-olf/backrub-go"
)

var listCommand = cli.Command{
	Name:      "list",
	Usage:     "list the backups stored in a repository",
	ArgsUsage: "--repo <path> --password-file <path>",
	Action:    listAction,
}

func listAction(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	repo, err := backrub.OpenRepository(repoPath(ctx), password)
	if err != nil {
		return errors.Wrap(err, "open repository")
	}
	defer repo.Close()

	backups, err := repo.ListBackups()
	if err != nil {
		return errors.Wrap(err, "list backups")
	}

	for _, b := range backups {
		fmt.Printf("%s  %s  %s\n", b.ID.String(), b.Timestamp.Format("2006-01-02T15:04:05Z07:00"), b.Name)
	}
	return nil
}
