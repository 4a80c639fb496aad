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
	"encoding/hex"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	backrub "github.com/br-olf/backrub-go"
	"github.com/br-olf/backrub-go/crypto/hash"
	"github.com/br-olf/backrub-go/restore"
)

var restoreCommand = cli.Command{
	Name:      "restore",
	Usage:     "restore a backup to a destination directory",
	ArgsUsage: "--repo <path> --password-file <path> <backup-id> <dest-dir>",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "abort-on-error",
			Usage: "abort the whole restore on the first per-entry error instead of skipping it",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "bound the number of files decrypted/written concurrently (0 means runtime.NumCPU())",
		},
	},
	Action: restoreAction,
}

func restoreAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: backrub restore --repo <path> --password-file <path> <backup-id> <dest-dir>")
	}
	idHex, destDir := ctx.Args().Get(0), ctx.Args().Get(1)

	idBytes, err := hex.DecodeString(idHex)
	if err != nil {
		return errors.Wrap(err, "invalid backup id")
	}
	id, err := hash.Hash256FromBytes(idBytes)
	if err != nil {
		return errors.Wrap(err, "invalid backup id")
	}

	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	repo, err := backrub.OpenRepository(repoPath(ctx), password)
	if err != nil {
		return errors.Wrap(err, "open repository")
	}
	defer repo.Close()

	conf := restore.Config{
		AbortOnError: ctx.Bool("abort-on-error"),
		Workers:      ctx.Int("workers"),
	}

	err = repo.Restore(context.Background(), id, destDir, conf)
	if _, ok := err.(restore.Errors); ok {
		log.WithField("err", err).Warn("backrub: restore completed with skipped entries")
	} else if err != nil {
		return errors.Wrap(err, "restore backup")
	}

	log.WithField("dest", destDir).Info("backrub: restore complete")
	return nil
}
