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

// Command backrub is a thin CLI wrapper around the top-level backrub API
// (package backrub, i.e. the module root). It carries no business logic
// of its own, per spec.md §1/§6 — everything here is flag parsing and
// wiring into CreateRepository/OpenRepository/CreateBackup/ListBackups/
// Restore.
package main

import (
	"os"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// version is populated on build by make, same convention as the teacher.
var version = ""

func main() {
	app := cli.NewApp()
	app.Name = "backrub"
	app.Usage = "content-addressed, deduplicating, encrypted backup engine"
	app.Version = versionString()

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log",
			Usage: "set the log level (debug, info, [warn], error, fatal)",
			Value: "warn",
		},
		cli.StringFlag{
			Name:  "repo",
			Usage: "path to the repository directory",
		},
		cli.StringFlag{
			Name:  "password-file",
			Usage: "path to a file holding the repository password (reads stdin if '-')",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetHandler(logcli.New(os.Stderr))
		level, err := log.ParseLevel(ctx.GlobalString("log"))
		if err != nil {
			return errors.Wrap(err, "parsing log level")
		}
		log.SetLevel(level)
		if ctx.GlobalString("repo") == "" {
			return errors.New("missing mandatory flag --repo")
		}
		return nil
	}

	app.Commands = []cli.Command{
		initCommand,
		backupCommand,
		listCommand,
		restoreCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func versionString() string {
	if version == "" {
		return "unknown"
	}
	return version
}
