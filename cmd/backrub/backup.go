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
	"context"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	backrub "github.com/br-olf/backrub-go"
	"github.com/br-olf/backrub-go/walk"
)

var backupCommand = cli.Command{
	Name:      "backup",
	Usage:     "walk a directory tree and record it as a new backup",
	ArgsUsage: "--repo <path> --password-file <path> <name> <source-dir>",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "follow-symlinks",
			Usage: "descend into symlinked directories and chunk symlinked files as if real",
		},
		cli.BoolFlag{
			Name:  "abort-on-error",
			Usage: "abort the whole backup on the first per-file error instead of skipping it",
		},
	},
	Action: backupAction,
}

func backupAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: backrub backup --repo <path> --password-file <path> <name> <source-dir>")
	}
	name, sourceDir := ctx.Args().Get(0), ctx.Args().Get(1)

	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	repo, err := backrub.OpenRepository(repoPath(ctx), password)
	if err != nil {
		return errors.Wrap(err, "open repository")
	}
	defer repo.Close()

	conf := walk.Config{
		FollowSymlinks: ctx.Bool("follow-symlinks"),
		AbortOnError:   ctx.Bool("abort-on-error"),
	}

	id, err := repo.CreateBackup(context.Background(), name, sourceDir, conf)
	if _, ok := err.(walk.Errors); ok {
		log.WithField("err", err).Warn("backrub: backup committed with skipped entries")
	} else if err != nil {
		return errors.Wrap(err, "create backup")
	}

	log.WithFields(log.Fields{"name": name, "id": id.String()}).Info("backrub: backup committed")
	return nil
}
